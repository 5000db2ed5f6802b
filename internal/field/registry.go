// internal/field/registry.go
//
// Field definition registry.
//
// Context
// -------
// Every component that needs field metadata receives a *Registry at
// construction.  Snapshot() hands out the current immutable Snapshot,
// loading it lazily from the Source and reloading once the TTL lapses.
// Concurrent cold loads collapse into one Source round-trip through
// singleflight, the same way the tenant cache loads sites.
//
// Workflow
// --------
//  1. reg := field.NewRegistry(store, ttl)
//  2. snap, err := reg.Snapshot(ctx)          // read path, lock free.
//  3. reg.Mutate(ctx, func(ctx) error { … })  // schema edits.
//
// Mutate clears the cached snapshot, runs the edit, and clears it again
// while bumping the generation.  A reload that started before the edit
// carries the old generation and is discarded rather than cached, so a
// reader never sees a definition older than the last completed edit.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.

package field

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/participants/internal/metrics"
)

// Source loads raw definitions.  *SQLStore and *FileSource satisfy it.
type Source interface {
	LoadGroups(ctx context.Context) ([]Group, error)
	LoadFields(ctx context.Context) ([]*Field, error)
}

// Registry caches Snapshots.  Zero value is unusable; use NewRegistry.
type Registry struct {
	src Source
	ttl time.Duration
	now func() time.Time

	sfg singleflight.Group
	cur atomic.Pointer[Snapshot]
	gen atomic.Uint64
}

// NewRegistry returns a registry over src.  ttl <= 0 caches until the next
// Invalidate.
func NewRegistry(src Source, ttl time.Duration) *Registry {
	return &Registry{src: src, ttl: ttl, now: time.Now}
}

// Snapshot returns the cached snapshot, reloading when absent or stale.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := r.cur.Load(); s != nil && !r.stale(s) {
		return s, nil
	}
	return r.Reload(ctx)
}

func (r *Registry) stale(s *Snapshot) bool {
	return s.Version != r.gen.Load() || (r.ttl > 0 && r.now().Sub(s.LoadedAt) > r.ttl)
}

// Reload loads a fresh snapshot from the Source.
func (r *Registry) Reload(ctx context.Context) (*Snapshot, error) {
	gen := r.gen.Load()
	v, err, _ := r.sfg.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		groups, err := r.src.LoadGroups(ctx)
		if err != nil {
			return nil, err
		}
		fields, err := r.src.LoadFields(ctx)
		if err != nil {
			return nil, err
		}
		s, err := NewSnapshot(groups, fields)
		if err != nil {
			return nil, err
		}
		s.Version = gen
		s.LoadedAt = r.now()

		if r.gen.Load() == gen {
			r.cur.Store(s)
		}
		metrics.FieldRegistryReloadsTotal.Inc()
		zap.S().Debugw("field registry loaded", "fields", len(fields), "groups", len(groups), "gen", gen)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate drops the cached snapshot so the next read reloads.
func (r *Registry) Invalidate() {
	r.gen.Add(1)
	r.cur.Store(nil)
}

// Mutate runs an edit of the definition store bracketed by invalidations.
func (r *Registry) Mutate(ctx context.Context, edit func(context.Context) error) error {
	r.Invalidate()
	err := edit(ctx)
	r.Invalidate()
	return err
}

// Use installs a prebuilt snapshot.  Tests and the YAML bootstrap path use
// it to skip the Source.
func (r *Registry) Use(s *Snapshot) {
	s.Version = r.gen.Load()
	s.LoadedAt = r.now()
	r.cur.Store(s)
}

// Static returns a registry that always serves s.
func Static(s *Snapshot) *Registry {
	r := NewRegistry(staticSource{s}, 0)
	r.Use(s)
	return r
}

type staticSource struct{ s *Snapshot }

func (st staticSource) LoadGroups(context.Context) ([]Group, error) { return st.s.Groups(), nil }

func (st staticSource) LoadFields(context.Context) ([]*Field, error) {
	out := make([]*Field, 0, len(st.s.fields))
	for _, f := range st.s.fields {
		if !f.Internal {
			out = append(out, f)
		}
	}
	return out, nil
}
