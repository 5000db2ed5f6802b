// components/fields/fields.go
//
// Fields component: definition reads, edits, live preview, and recompute.
//
// Context
// -------
// A field edit is the one place where the definition and the stored data
// can drift apart.  PUT hands the edited definition to
// dynamic.Resolver.UpdateField, which rejects calculation templates that
// do not parse (the stored template stays), saves the rest, and queues a
// recompute of every record when a computed field's template or
// attributes changed.  A changed form element can change the column type,
// so the records table is synced straight after.
//
// Routes (mounted at /api/fields)
// ------
//   GET  /                   editor         every user field
//   GET  /{name}             editor         one field
//   PUT  /{name}             fields/edit    save an edited definition
//   POST /{name}/preview     editor         resolve against overlay values
//   POST /{name}/recompute   fields/edit    queue every record
//
// fields/edit is a role_acl grant on top of editor.  Administrators always
// hold it.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package fields

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/yanizio/participants/internal/acl"
	"github.com/yanizio/participants/internal/api"
	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/component"
	"github.com/yanizio/participants/internal/engine"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/form"
	"github.com/yanizio/participants/internal/logger"
)

// Compile-time assertion.
var _ component.Component = (*Component)(nil)

// Component serves /api/fields.
type Component struct {
	e *engine.Engine
}

func (c *Component) Name() string         { return "fields" }
func (c *Component) Migrations() []string { return nil }

// Init keeps the engine.
func (c *Component) Init(e *engine.Engine) error {
	c.e = e
	return nil
}

// Routes builds the router mounted at /api/fields.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(ed chi.Router) {
		ed.Use(acl.RequireCapability(auth.Editor))
		ed.Get("/", c.list)
		ed.Get("/{name}", c.get)
		ed.Post("/{name}/preview", c.preview)
	})
	r.Group(func(ed chi.Router) {
		ed.Use(acl.RequireCapability(auth.Editor))
		ed.Use(acl.RequirePermission(c.e.DB.DB, "fields", "edit"))
		ed.Put("/{name}", c.save)
		ed.Post("/{name}/recompute", c.recompute)
	})
	return r
}

func init() { component.Register(&Component{}) }

/*──────────────────────────── handlers ─────────────────────────────────────*/

func (c *Component) list(w http.ResponseWriter, r *http.Request) {
	snap, err := c.e.Fields.Snapshot(r.Context())
	if err != nil {
		api.Error(w, r, err)
		return
	}
	out := make([]*field.Field, 0, len(snap.All()))
	for _, f := range snap.All() {
		if !f.Internal {
			out = append(out, f)
		}
	}
	api.JSON(w, http.StatusOK, map[string]any{"groups": snap.Groups(), "fields": out})
}

func (c *Component) get(w http.ResponseWriter, r *http.Request) {
	f, err := c.lookup(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, f)
}

// EditResult reports a saved definition.
type EditResult struct {
	Changed bool   `json:"changed"`
	Batch   string `json:"batch,omitempty"`
	Synced  int    `json:"columns_synced,omitempty"`
}

func (c *Component) save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cur, err := c.lookup(ctx, chi.URLParam(r, "name"))
	if err != nil {
		api.Error(w, r, err)
		return
	}

	body, err := api.ReadBody(w, r)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	// Absent keys keep their stored values; a present attribute map
	// replaces the stored one instead of merging into it.
	edited := cur.Clone()
	if gjson.GetBytes(body, "attributes").Exists() {
		edited.Attributes = nil
	}
	if err := json.Unmarshal(body, edited); err != nil {
		api.Error(w, r, fmt.Errorf("%w: %w", form.ErrBadBody, err))
		return
	}
	edited.ID, edited.Name, edited.Internal = cur.ID, cur.Name, false

	ed, err := c.e.Resolver.UpdateField(ctx, edited)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	res := EditResult{Changed: ed.Changed, Batch: ed.Batch}

	if cur.Type().SQLDatatype() != edited.Type().SQLDatatype() {
		snap, err := c.e.Fields.Snapshot(ctx)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		changes, err := c.e.Schema.Sync(ctx, snap, false)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		res.Synced = len(changes)
	}
	logger.FromContext(ctx).Infow("field edited", "field", edited.Name,
		"user_id", auth.ActorFrom(ctx).UserID, "changed", res.Changed, "batch", res.Batch)
	api.JSON(w, http.StatusOK, res)
}

func (c *Component) preview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := c.lookup(ctx, chi.URLParam(r, "name"))
	if err != nil {
		api.Error(w, r, err)
		return
	}
	body, err := api.ReadBody(w, r)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		api.Error(w, r, form.ErrBadBody)
		return
	}

	// {"record_id": 12, "values": {"age": "30"}}
	overlay := map[string]string{}
	gjson.GetBytes(body, "values").ForEach(func(k, v gjson.Result) bool {
		overlay[k.String()] = v.String()
		return true
	})
	v, err := c.e.Resolver.Resolve(ctx, f, gjson.GetBytes(body, "record_id").Int(), overlay)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, v)
}

func (c *Component) recompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := c.lookup(ctx, chi.URLParam(r, "name"))
	if err != nil {
		api.Error(w, r, err)
		return
	}
	batch, err := c.e.Resolver.RecomputeAll(ctx, f, nil)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusAccepted, map[string]string{"batch": batch})
}

// lookup finds a user field by name.
func (c *Component) lookup(ctx context.Context, name string) (*field.Field, error) {
	snap, err := c.e.Fields.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	f, ok := snap.Field(name)
	if !ok || f.Internal {
		return nil, fmt.Errorf("%w: %q", field.ErrUnknownField, name)
	}
	return f, nil
}
