// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  The API router mounts every
// component's Routes() under "/api/<name>" after InitAll has handed each one the
// shared *engine.Engine.  Migrations() lists the DDL a component owns;
// `pdbctl install` and cmd/web run them through Migrate.

package component

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/participants/internal/engine"
)

// Initializer is optional.  If a Component implements it, InitAll calls
// Init(e) once before Routes.
type Initializer interface {
	Init(e *engine.Engine) error
}

// Component contract.
//
// Migrations() may return nil if the component has no schema of its own.
// Routes() returns a router that is mounted at "/api/<name>", e.g:
//
//	r := chi.NewRouter()
//	r.Get("/{id}", c.get) // GET /api/records/{id}
//	return r
type Component interface {
	Name() string
	Routes() chi.Router
	Migrations() []string
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component ordered by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// InitAll initialises comps in order and stops at the first failure.
func InitAll(e *engine.Engine, comps []Component) error {
	for _, c := range comps {
		in, ok := c.(Initializer)
		if !ok {
			continue
		}
		if err := in.Init(e); err != nil {
			return fmt.Errorf("init component %s: %w", c.Name(), err)
		}
	}
	return nil
}

// Migrate runs every component's migrations.  Statements must be
// idempotent (CREATE TABLE IF NOT EXISTS and the like).
func Migrate(ctx context.Context, db *sqlx.DB, comps []Component) error {
	for _, c := range comps {
		for _, q := range c.Migrations() {
			if _, err := db.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("migrate component %s: %w", c.Name(), err)
			}
		}
	}
	return nil
}
