// internal/app/app.go
//
// Process bootstrap shared by cmd/web and cmd/pdbctl.
//
// Workflow
// --------
//   1. Install the Vault resolver when VAULT_ADDR is set, so `vault:`
//      references in global.yaml resolve during the load.
//   2. Load the configuration and start the rotating logger.
//   3. Open the MySQL pool with the password merged into the DSN.
//   4. Build the engine over the pool.
//
// Notes
// -----
// • Close tears down in reverse order.
// • Oxford commas, two spaces after periods.

package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/config"
	"github.com/yanizio/participants/internal/database"
	"github.com/yanizio/participants/internal/engine"
	"github.com/yanizio/participants/internal/logger"
	"github.com/yanizio/participants/internal/vault"
)

// App is a loaded configuration, a logger, a pool, and the engine on it.
type App struct {
	Config *config.Config
	Log    *zap.SugaredLogger
	DB     *sqlx.DB
	Engine *engine.Engine
}

// Options tunes Open.
type Options struct {
	// Tee mirrors the file log to stdout.  Defaults to log.tee or a TTY.
	Tee bool
	// Retries is the number of extra database pings before giving up.
	Retries int
}

// Open runs the bootstrap.  The caller must Close the result.
func Open(ctx context.Context, o Options) (*App, error) {
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx, zap.S())
		if err != nil {
			return nil, err
		}
		config.UseSecrets(vc)
	}

	cfg, err := config.LoadFrom(ctx, config.RootDir())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Paths.Root, o.Tee || cfg.Log.Tee || RunningInTTY(), cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("start logger: %w", err)
	}

	dsn, err := cfg.Database.DSNWithPassword()
	if err != nil {
		return nil, fmt.Errorf("database dsn: %w", err)
	}
	db, err := database.OpenWithOptions(ctx, dsn, database.Options{
		MaxOpenConns: cfg.Database.MaxOpen,
		MaxIdleConns: cfg.Database.MaxIdle,
		Retries:      o.Retries,
	})
	if err != nil {
		return nil, err
	}
	log.Infow("database online", "table_prefix", cfg.Database.TablePrefix)

	e, err := engine.New(ctx, cfg, db, nil, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &App{Config: cfg, Log: log, DB: db, Engine: e}, nil
}

// Close releases the engine, then the pool, and flushes the log.
func (a *App) Close() error {
	err := a.Engine.Close()
	if cerr := a.DB.Close(); err == nil {
		err = cerr
	}
	_ = a.Log.Sync()
	return err
}

// RunningInTTY reports whether stdout is a character device.
func RunningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
