// components/records/records.go
//
// Records component: participant record reads and writes.
//
// Context
// -------
// Every write goes through the same three steps: form.HandleSubmit parses
// and validates the submission against the current field snapshot,
// query.Builder turns it into one INSERT or UPDATE (computed fields
// included), and query.Writer executes it and applies the upload side
// effects.  The acting user decides the column.Mode: editors write in
// admin mode, everyone else is a signup (insert) or a participant editing
// through their private link (update).
//
// Routes (mounted at /api/records)
// ------
//   GET    /{id}          editor     stored and display values
//   POST   /              anyone     insert; anonymous callers sign up
//   PUT    /{id}          editor     update
//   DELETE /              editor     bulk delete, {"ids": [...]}, with the
//                                    records/delete role grant
//   POST   /import        editor     bulk insert or update in one transaction
//   GET    /pid/{pid}     anyone     participant view by private id
//   PUT    /pid/{pid}     anyone     participant update by private id
//
// Notes
// -----
// • Password columns are never returned.
// • Oxford commas, two spaces after periods.

package records

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/yanizio/participants/internal/acl"
	"github.com/yanizio/participants/internal/api"
	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/component"
	"github.com/yanizio/participants/internal/engine"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/form"
	"github.com/yanizio/participants/internal/logger"
	"github.com/yanizio/participants/internal/query"
	"github.com/yanizio/participants/internal/record"
	"github.com/yanizio/participants/internal/requestinfo"
)

// Compile-time assertions.
var (
	_ component.Component   = (*Component)(nil)
	_ component.Initializer = (*Component)(nil)
)

// Component serves /api/records.
type Component struct {
	e *engine.Engine
	// BlockBots refuses anonymous signups from crawler user agents.
	BlockBots bool
}

// Name returns the canonical component key.
func (c *Component) Name() string { return "records" }

// Migrations returns nil; the records table is owned by internal/schema.
func (c *Component) Migrations() []string { return nil }

// Init keeps the engine.
func (c *Component) Init(e *engine.Engine) error {
	c.e = e
	c.BlockBots = e.Config.HTTP.BlockBotSignup
	return nil
}

// Routes builds the router mounted at /api/records.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", c.create)
	r.Get("/pid/{pid}", c.getPrivate)
	r.Put("/pid/{pid}", c.updatePrivate)

	r.Group(func(ed chi.Router) {
		ed.Use(acl.RequireCapability(auth.Editor))
		ed.Get("/{id}", c.get)
		ed.Put("/{id}", c.update)
		ed.With(acl.RequirePermission(c.e.DB.DB, "records", "delete")).Delete("/", c.remove)
		ed.Post("/import", c.importRows)
	})
	return r
}

// Register component at program start.
func init() { component.Register(&Component{}) }

/*──────────────────────────── responses ────────────────────────────────────*/

// View is a record as the API returns it.
type View struct {
	ID      int64             `json:"id"`
	Values  map[string]string `json:"values"`
	Display map[string]string `json:"display"`
}

// WriteResult reports a successful write.
type WriteResult struct {
	ID        int64  `json:"id"`
	PrivateID string `json:"private_id,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// ImportResult tallies an import.
type ImportResult struct {
	Inserted int     `json:"inserted"`
	Updated  int     `json:"updated"`
	IDs      []int64 `json:"ids"`
}

/*──────────────────────────── handlers ─────────────────────────────────────*/

func (c *Component) get(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "Invalid record id.")
		return
	}
	v, err := c.view(r.Context(), id, true)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, v)
}

func (c *Component) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFrom(ctx)
	mode := column.Mode{Signup: !actor.AtLeast(auth.Editor), Actor: actor}

	if mode.Signup && c.BlockBots && requestinfo.IsBot(ctx) {
		logger.FromContext(ctx).Infow("signup refused for automated client")
		api.Fail(w, http.StatusForbidden, "Signups from automated clients are not accepted.")
		return
	}
	out, err := c.write(ctx, r, query.Insert, 0, mode)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusCreated, out)
}

func (c *Component) update(w http.ResponseWriter, r *http.Request) {
	id, ok := api.PathID(r, "id")
	if !ok {
		api.Fail(w, http.StatusBadRequest, "Invalid record id.")
		return
	}
	mode := column.Mode{Actor: auth.ActorFrom(r.Context())}
	out, err := c.write(r.Context(), r, query.Update, id, mode)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, out)
}

func (c *Component) getPrivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := c.e.Records.ByPrivateID(ctx, chi.URLParam(r, "pid"))
	if err != nil {
		api.Error(w, r, err)
		return
	}
	if err := c.e.Records.Touch(ctx, id, time.Now()); err != nil {
		logger.FromContext(ctx).Warnw("last_accessed not updated", "record_id", id, "err", err)
	}
	v, err := c.view(ctx, id, false)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, v)
}

func (c *Component) updatePrivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := c.e.Records.ByPrivateID(ctx, chi.URLParam(r, "pid"))
	if err != nil {
		api.Error(w, r, err)
		return
	}
	// A participant never gets editor rights over readonly fields, even
	// when signed in as one.
	actor := auth.ActorFrom(ctx)
	actor.Capability = min(actor.Capability, auth.Author)
	out, err := c.write(ctx, r, query.Update, id, column.Mode{Actor: actor})
	if err != nil {
		api.Error(w, r, err)
		return
	}
	out.PrivateID = ""
	api.JSON(w, http.StatusOK, out)
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (c *Component) remove(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.Error(w, r, err)
		return
	}
	ctx := r.Context()
	snap, err := c.e.Fields.Snapshot(ctx)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	n, err := c.e.Records.Delete(ctx, req.IDs, fileColumns(snap), c.e.Uploads)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	for _, id := range req.IDs {
		c.e.Resolver.InvalidateRecord(id)
	}
	logger.FromContext(ctx).Infow("records deleted", "requested", len(req.IDs), "deleted", n,
		"user_id", auth.ActorFrom(ctx).UserID)
	api.JSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (c *Component) importRows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := api.ReadBody(w, r)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	snap, err := c.e.Fields.Snapshot(ctx)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	mode := column.Mode{Import: true, Actor: auth.ActorFrom(ctx)}
	rows, err := c.parseImport(ctx, snap, body, mode)
	if err != nil {
		api.Error(w, r, err)
		return
	}

	res, err := c.e.Writer.Import(ctx, c.e.Builder, snap, rows, mode)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	for _, id := range res.IDs {
		c.e.Resolver.InvalidateRecord(id)
	}
	api.JSON(w, http.StatusOK, ImportResult{Inserted: res.Inserted, Updated: res.Updated, IDs: res.IDs})
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

// write runs one submission through validation, the builder, and the
// writer.
func (c *Component) write(ctx context.Context, r *http.Request, action query.Action, id int64, mode column.Mode) (WriteResult, error) {
	snap, err := c.e.Fields.Snapshot(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	var stored map[string]string
	if action == query.Update {
		if stored, err = c.e.Records.Get(ctx, id); err != nil {
			return WriteResult{}, err
		}
	}

	values, err := form.HandleSubmit(r, snap, form.Options{Full: action == query.Insert, Mode: mode})
	if err != nil {
		return WriteResult{}, err
	}
	st, err := c.e.Builder.Build(ctx, snap, query.Submission{
		Action: action, RecordID: id, Values: values, Mode: mode,
	}, stored)
	if err != nil {
		return WriteResult{}, err
	}
	out, err := c.e.Writer.Exec(ctx, st, mode)
	if err != nil {
		return WriteResult{}, err
	}
	c.e.Resolver.InvalidateRecord(out.ID)

	logger.FromContext(ctx).Infow("record saved",
		"action", action.String(), "record_id", out.ID, "user_id", mode.Actor.UserID,
		"signup", mode.Signup, "columns", len(st.Columns))
	return WriteResult{ID: out.ID, PrivateID: out.PrivateID, Warning: out.Warning}, nil
}

// view loads a record with display values.  Outside admin mode the
// administrative groups are hidden.
func (c *Component) view(ctx context.Context, id int64, admin bool) (View, error) {
	snap, err := c.e.Fields.Snapshot(ctx)
	if err != nil {
		return View{}, err
	}
	row, err := c.e.Records.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	v := View{ID: id, Values: map[string]string{}, Display: map[string]string{}}
	for _, f := range snap.All() {
		raw, ok := row[f.Name]
		if !ok || f.Kind() == field.KindPassword {
			continue
		}
		if !admin {
			if g, _ := snap.Group(f.Group); g.Mode == field.ModeAdmin {
				continue
			}
		}
		v.Values[f.Name] = raw
		v.Display[f.Name] = c.e.Resolver.DisplayValue(f, raw)
	}
	return v, nil
}

// parseImport decodes {"rows": [{"match_id": n, "values": {...}}]} and
// validates each row.  A match id that names no record becomes an insert.
func (c *Component) parseImport(ctx context.Context, snap *field.Snapshot, body []byte, mode column.Mode) ([]query.ImportRow, error) {
	if !gjson.ValidBytes(body) {
		return nil, form.ErrBadBody
	}
	list := gjson.GetBytes(body, "rows")
	if !list.IsArray() {
		return nil, form.ErrBadBody
	}

	var (
		rows []query.ImportRow
		errs []form.ErrorField
	)
	for i, item := range list.Array() {
		values, err := form.ParseJSON([]byte(item.Get("values").Raw))
		if err != nil {
			return nil, err
		}
		for _, fe := range form.Validate(snap, values, form.Options{Mode: mode}) {
			fe.Name = rowKey(i, fe.Name)
			errs = append(errs, fe)
		}
		row := query.ImportRow{MatchID: item.Get("match_id").Int(), Values: values}
		if row.MatchID > 0 {
			row.Stored, err = c.e.Records.Get(ctx, row.MatchID)
			switch {
			case errors.Is(err, record.ErrNotFound):
				row.MatchID = 0
			case err != nil:
				return nil, err
			}
		}
		rows = append(rows, row)
	}
	if len(errs) > 0 {
		return nil, form.ValidationError{Fields: errs}
	}
	return rows, nil
}

func rowKey(i int, name string) string {
	return "rows." + strconv.Itoa(i) + "." + name
}

// fileColumns lists the upload fields whose files go with a deleted row.
func fileColumns(snap *field.Snapshot) []string {
	var out []string
	for _, f := range snap.Writing() {
		if f.Kind() == field.KindFile {
			out = append(out, f.Name)
		}
	}
	return out
}
