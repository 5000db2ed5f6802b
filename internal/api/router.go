// internal/api/router.go
//
// Root HTTP handler.
//
// The middleware order matters: request info first so every later log
// line carries the request id, then the panic guard and response headers,
// then the actor lookup that RequireCapability reads.  Each component is
// mounted at /api/<name>.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/acl"
	"github.com/yanizio/participants/internal/component"
	"github.com/yanizio/participants/internal/middleware"
	"github.com/yanizio/participants/internal/requestinfo"
)

// Options configures NewRouter.
type Options struct {
	DB         *sqlx.DB
	Geo        *requestinfo.Geo // optional
	Logger     *zap.SugaredLogger
	Components []component.Component
	// Metrics exposes /metrics when true.
	Metrics bool
}

// NewRouter builds the root handler.
func NewRouter(o Options) http.Handler {
	r := chi.NewRouter()
	r.Use(requestinfo.Enrich(o.Geo, o.Logger))
	r.Use(middleware.Recover)
	r.Use(middleware.Security)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := o.DB.PingContext(req.Context()); err != nil {
			Fail(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if o.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(acl.ResolveActor(o.DB.DB))
		for _, c := range o.Components {
			api.Mount("/"+c.Name(), c.Routes())
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		Fail(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		Fail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})
	return r
}
