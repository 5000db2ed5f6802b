// cmd/web/main.go
//
// Participants Database – HTTP entry point.
//
// Start-up
// --------
//
//  1. Load configuration (defaults → conf/.env → global.yaml → PDB_ env),
//     resolving `vault:` secrets when VAULT_ADDR is set.
//
//  2. Start the daily rotating logger (tees to console in a TTY).
//
//  3. Open the MySQL pool and build the engine.
//
//  4. Initialise every registered component and run its migrations.
//
//  5. Start the recompute worker in the background.
//
//  6. Serve the JSON API, /healthz, and /metrics until SIGINT or SIGTERM,
//     then drain connections for up to shutdownGrace.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yanizio/participants/internal/api"
	"github.com/yanizio/participants/internal/app"
	"github.com/yanizio/participants/internal/component"
	"github.com/yanizio/participants/internal/config"
	"github.com/yanizio/participants/internal/requestinfo"
	"github.com/yanizio/participants/internal/server"

	_ "github.com/yanizio/participants/components/fields"
	_ "github.com/yanizio/participants/components/list"
	_ "github.com/yanizio/participants/components/records"
)

const shutdownGrace = 20 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config, logger, database, engine ────────────────────────────
	//
	a, err := app.Open(ctx, app.Options{Retries: 5})
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer a.Close()
	logOut := a.Log

	if err := config.Watch(a.Config.Paths.Root, func(c *config.Config) {
		logOut.Infow("global.yaml changed; restart to apply", "listen_addr", c.HTTP.ListenAddr)
	}); err != nil {
		logOut.Warnw("config watch disabled", "err", err)
	}

	//
	// ── 2.  Components ──────────────────────────────────────────────────
	//
	comps := component.All()
	if err := component.InitAll(a.Engine, comps); err != nil {
		logOut.Fatalw("component init", "err", err)
	}
	if err := component.Migrate(ctx, a.DB, comps); err != nil {
		logOut.Fatalw("component migrate", "err", err)
	}
	names := make([]string, 0, len(comps))
	for _, c := range comps {
		names = append(names, c.Name())
	}
	logOut.Infow("components online", "components", names)

	//
	// ── 3.  Recompute worker ────────────────────────────────────────────
	//
	go func() {
		if err := a.Engine.Worker().Run(ctx); err != nil {
			logOut.Errorw("recompute worker stopped", "err", err)
		}
	}()

	//
	// ── 4.  HTTP server ─────────────────────────────────────────────────
	//
	geo, err := requestinfo.OpenGeo(a.Config.HTTP.GeoIPDB)
	if err != nil {
		logOut.Warnw("geoip disabled", "err", err)
	}
	defer geo.Close()

	srv := server.New(a.Config.HTTP, api.NewRouter(api.Options{
		DB:         a.DB,
		Geo:        geo,
		Logger:     logOut,
		Components: comps,
		Metrics:    true,
	}))

	errc := make(chan error, 1)
	go func() {
		logOut.Infow("listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logOut.Errorw("http server", "err", err)
		}
	case <-ctx.Done():
		logOut.Infow("shutting down", "grace", shutdownGrace)
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logOut.Errorw("graceful shutdown", "err", err)
		}
	}
}
