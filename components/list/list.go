// components/list/list.go
//
// List component: the admin record list with its saved filter.
//
// Context
// -------
// Each editor has one filter (search clauses, sort, page, and recently
// searched fields) persisted between requests.  Every request loads it,
// applies at most one transition, validates the result against the
// current field snapshot, saves it, and runs the page.
//
// Routes (mounted at /api/list)
// ------
//   GET  /          editor         ?page=N  ?sort=<column>  ?clear=1
//   POST /search    editor         {"clauses": [...]} replaces the search
//   GET  /sql       administrator  the SELECT and COUNT the filter builds
//
// Notes
// -----
// • `sort` on the active column flips the direction.
// • Oxford commas, two spaces after periods.

package list

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/participants/internal/acl"
	"github.com/yanizio/participants/internal/adminlist"
	"github.com/yanizio/participants/internal/api"
	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/component"
	"github.com/yanizio/participants/internal/engine"
)

// Compile-time assertions.
var (
	_ component.Component   = (*Component)(nil)
	_ component.Initializer = (*Component)(nil)
)

// Component serves /api/list.
type Component struct {
	e *engine.Engine
}

// Name returns the canonical component key.
func (c *Component) Name() string { return "list" }

// Migrations creates the saved-filter table.
func (c *Component) Migrations() []string {
	if c.e == nil {
		return nil
	}
	return []string{c.e.Filters.CreateTableSQL()}
}

// Init keeps the engine.
func (c *Component) Init(e *engine.Engine) error {
	c.e = e
	return nil
}

// Routes builds the router mounted at /api/list.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(acl.RequireCapability(auth.Editor)).Get("/", c.page)
	r.With(acl.RequireCapability(auth.Editor)).Post("/search", c.search)
	r.With(acl.RequireCapability(auth.Administrator)).Get("/sql", c.sql)
	return r
}

func init() { component.Register(&Component{}) }

// PageView is adminlist.Page plus its page count.
type PageView struct {
	adminlist.Page
	Pages int `json:"pages"`
}

/*──────────────────────────── handlers ─────────────────────────────────────*/

func (c *Component) page(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var tr adminlist.Transition
	switch {
	case q.Get("clear") != "":
		tr = adminlist.Filter.Clear
	case q.Get("sort") != "":
		col := q.Get("sort")
		tr = func(f adminlist.Filter) adminlist.Filter { return f.ToggleSort(col) }
	case q.Get("page") != "":
		n, err := strconv.Atoi(q.Get("page"))
		if err != nil || n < 1 {
			api.Fail(w, http.StatusBadRequest, "Invalid page.")
			return
		}
		tr = func(f adminlist.Filter) adminlist.Filter {
			f.Page = n
			return f
		}
	}
	c.run(w, r, tr)
}

type searchRequest struct {
	Clauses []adminlist.Clause `json:"clauses"`
}

func (c *Component) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := api.Decode(w, r, &req); err != nil {
		api.Error(w, r, err)
		return
	}
	recent := c.e.Lister.MaxRecent
	c.run(w, r, func(f adminlist.Filter) adminlist.Filter {
		return f.SetSearch(req.Clauses, recent)
	})
}

func (c *Component) run(w http.ResponseWriter, r *http.Request, tr adminlist.Transition) {
	ctx := r.Context()
	snap, err := c.e.Fields.Snapshot(ctx)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	p, err := c.e.Lister.List(ctx, snap, auth.ActorFrom(ctx).UserID, tr)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, PageView{Page: p, Pages: p.Pages()})
}

func (c *Component) sql(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := c.e.Fields.Snapshot(ctx)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	f, err := c.e.Lister.Store.Load(ctx, auth.ActorFrom(ctx).UserID)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	v, err := c.e.Lister.Explain(snap, f)
	if err != nil {
		api.Error(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, v)
}
