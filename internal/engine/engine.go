// internal/engine/engine.go
//
// Process-wide wiring of the participant engine.
//
// Context
// -------
// Both binaries need the same graph of collaborators: a field registry
// over the definition tables, the record store, the dynamic resolver, the
// write query builder, the admin lister, and the recompute queue.  New
// builds that graph once from a loaded *config.Config and an open pool, so
// cmd/web and cmd/pdbctl never disagree about table names or tunables.
//
// Workflow
// --------
//   1. Locale and clock from the `locale` and `calc` sections.
//   2. Definition store, registry, and record store on the prefixed tables.
//   3. Queue backend (memory or Redis) and its dispatcher.
//   4. Resolver, normalizer, builder, writer, schema manager, and lister.
//
// Notes
// -----
// • Close releases the queue connection.  The database pool belongs to the
//   caller.
// • Oxford commas, two spaces after periods.

package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/acl"
	"github.com/yanizio/participants/internal/adminlist"
	"github.com/yanizio/participants/internal/calc"
	"github.com/yanizio/participants/internal/column"
	"github.com/yanizio/participants/internal/config"
	"github.com/yanizio/participants/internal/dynamic"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/locale"
	"github.com/yanizio/participants/internal/query"
	"github.com/yanizio/participants/internal/queue"
	"github.com/yanizio/participants/internal/record"
	"github.com/yanizio/participants/internal/schema"
	"github.com/yanizio/participants/internal/upload"
)

// registryTTL bounds how long a process serves definitions edited by
// another process.
const registryTTL = time.Minute

// Engine bundles the collaborators every entry point shares.  Treat the
// fields as read-only after New.
type Engine struct {
	Config *config.Config
	DB     *sqlx.DB
	Log    *zap.SugaredLogger

	Locale     *locale.Formatter
	Clock      *calc.Clock
	FieldStore *field.SQLStore
	Fields     *field.Registry
	Records    *record.Store
	Uploads    *upload.Store
	Queue      queue.Backend
	Dispatcher *queue.Dispatcher
	Resolver   *dynamic.Resolver
	Builder    *query.Builder
	Writer     *query.Writer
	Schema     *schema.Manager
	Filters    *adminlist.SQLStore
	Lister     *adminlist.Lister

	closers []func() error
}

// New wires the engine.  backend may be nil, in which case the `queue`
// section picks one.
func New(ctx context.Context, cfg *config.Config, db *sqlx.DB, backend queue.Backend, log *zap.SugaredLogger) (*Engine, error) {
	if log == nil {
		log = zap.S()
	}
	loc, err := locale.New(cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("locale: %w", err)
	}

	e := &Engine{Config: cfg, DB: db, Log: log, Locale: loc}
	e.Clock = calc.NewClock(loc.Location(), cfg.Calc.KeywordTTL)

	prefix := cfg.Database.TablePrefix
	e.FieldStore = field.NewSQLStore(db, prefix)
	e.Fields = field.NewRegistry(e.FieldStore, registryTTL)
	e.Records = record.NewStore(db, cfg.Database.Table(record.DefaultTable), log)
	e.Uploads = upload.New(uploadDir(cfg), cfg.Records.DeleteUploadedFiles)

	if backend == nil {
		if backend, err = e.openQueue(ctx); err != nil {
			return nil, err
		}
	}
	e.Queue = backend
	e.Dispatcher = queue.NewDispatcher(backend, log)

	e.Resolver = dynamic.New(dynamic.Options{
		Fields:     e.Fields,
		Records:    e.Records,
		Dispatcher: e.Dispatcher,
		Saver:      e.FieldStore,
		Clock:      e.Clock,
		Locale:     loc,
		CacheSize:  cfg.Calc.CacheSize,
		CacheTTL:   cfg.Calc.CacheTTL,
		Logger:     log,
	})

	e.Builder = &query.Builder{
		Table:      cfg.Database.Table(record.DefaultTable),
		Normalizer: column.NewNormalizer(loc, cfg.Records.AllowEmptyOverwrite, cfg.Records.StrictDates),
		Resolver:   e.Resolver,
		PIDs: &query.PIDGenerator{
			Length: cfg.Records.PrivateIDLength,
			Exists: e.Records.PrivateIDExists,
		},
	}
	e.Writer = query.NewWriter(db, e.Uploads, log)
	e.Schema = schema.New(db, cfg.Database.Table(record.DefaultTable), log)

	e.Filters = adminlist.NewSQLStore(db, cfg.Database.Table(adminlist.DefaultTable), cfg.AdminList.FilterVersion)
	e.Lister = &adminlist.Lister{
		DB:        db,
		Builder:   &adminlist.Builder{Table: cfg.Database.Table(record.DefaultTable), Locale: loc},
		Store:     e.Filters,
		PageSize:  cfg.AdminList.PageSize,
		MaxRecent: cfg.AdminList.RecentFields,
	}
	return e, nil
}

func (e *Engine) openQueue(ctx context.Context) (queue.Backend, error) {
	q := e.Config.Queue
	if q.Driver != "redis" {
		e.Log.Infow("recompute queue online", "driver", "memory")
		return queue.NewMemory(), nil
	}
	r, err := queue.NewRedis(ctx, queue.RedisOptions{Addr: q.RedisAddr, Key: q.RedisKey})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, r.Close)
	e.Log.Infow("recompute queue online", "driver", "redis", "addr", q.RedisAddr)
	return r, nil
}

func uploadDir(cfg *config.Config) string {
	dir := cfg.Records.UploadDir
	if dir == "" || filepath.IsAbs(dir) || cfg.Paths.Root == "" {
		return dir
	}
	return filepath.Join(cfg.Paths.Root, dir)
}

// Worker builds a recompute worker over the engine's queue.
func (e *Engine) Worker() *queue.Worker {
	return queue.NewWorker(e.Queue, e.Resolver, queue.WorkerOptions{
		SliceSize:    e.Config.Queue.SliceSize,
		PollInterval: e.Config.Queue.PollInterval,
		Logger:       e.Log,
	})
}

// Install creates the definition, records, and role tables when missing.
// Component tables are created by component.Migrate.  When seed is
// not nil its groups and fields are written first so the records table is
// built with their columns.
func (e *Engine) Install(ctx context.Context, seed *field.Document) error {
	if err := e.FieldStore.CreateTables(ctx); err != nil {
		return err
	}
	if seed != nil {
		if err := e.FieldStore.Seed(ctx, seed.Groups, seed.Fields); err != nil {
			return err
		}
		e.Fields.Invalidate()
	}
	snap, err := e.Fields.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := e.Schema.CreateTable(ctx, snap); err != nil {
		return err
	}
	if err := acl.CreateTables(ctx, e.DB.DB, acl.DefaultGrants); err != nil {
		return err
	}
	e.Log.Infow("install complete", "fields", len(snap.All()))
	return nil
}

// Close releases what New opened.
func (e *Engine) Close() error {
	var first error
	for _, c := range e.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
