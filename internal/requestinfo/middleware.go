// internal/requestinfo/middleware.go
//
// HTTP middleware that enriches each request with *RequestInfo.
//
/*
Context
--------
This handler sits first in the API chain, before the actor is resolved.
For every request it:

  1. Assigns a request id, honouring an inbound X-Request-ID.
  2. Extracts the left-most client IP from X-Forwarded-For or X-Real-IP,
     falling back to `r.RemoteAddr`.
  3. Parses the User-Agent header and Accept-Language list, and performs
     a GeoLite2 lookup when a database is configured.
  4. Stores the `*RequestInfo` and a request-scoped logger in the
     request context, and echoes the id in the response header.

Notes
-----
  • All look-ups are read-only, so the middleware is safe under heavy
    concurrency.
  • Oxford commas, two spaces after periods.  No em dash.
*/
package requestinfo

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/logger"
)

// IDHeader carries the request id in and out.
const IDHeader = "X-Request-ID"

/*──────────────────────────── middleware ───────────────────────────────────*/

// Enrich returns middleware that attaches *RequestInfo and forwards.  geo
// may be nil.
func Enrich(geo *Geo, base *zap.SugaredLogger) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.S()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(IDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			ip := clientIP(r)
			country, city := geo.Lookup(ip)
			info := &RequestInfo{
				ID:         id,
				IP:         ip,
				CountryISO: country,
				City:       city,
				UA:         ParseUA(r.UserAgent(), r.Header.Get("Accept-Language")),
				Start:      time.Now().UTC(),
			}

			log := base.With(info.Fields()...)
			log.Debugw("request", "method", r.Method, "path", r.URL.Path)

			w.Header().Set(IDHeader, id)
			ctx := logger.WithContext(WithInfo(r.Context(), info), log)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

/*──────────────────────────── client IP helper ─────────────────────────────*/

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
