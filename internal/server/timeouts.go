// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts.
//
// Production hardening recommends:
//
//   • ReadTimeout   – abort slow-loris headers (10 s)
//   • WriteTimeout  – cap total response time (15 s)
//   • IdleTimeout   – close keep-alives on idle clients (60 s)
//
// This helper centralises those defaults so cmd/web doesn’t repeat
// boilerplate.  Non-zero values from config.HTTP override the first two.
//

package server

import (
	"net/http"
	"time"

	"github.com/yanizio/participants/internal/config"
)

// New constructs an *http.Server with sensible defaults.
func New(cfg config.HTTP, handler http.Handler) *http.Server {
	read, write := 10*time.Second, 15*time.Second
	if cfg.ReadTimeout > 0 {
		read = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		write = cfg.WriteTimeout
	}
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadTimeout:       read,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       60 * time.Second,
	}
}
