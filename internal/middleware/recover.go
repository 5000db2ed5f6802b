// internal/middleware/recover.go
//
// Panic guard for API handlers.  A panicking handler is logged with its
// stack through the request-scoped logger and answered with 500 instead of
// tearing down the connection.

package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/yanizio/participants/internal/logger"
)

// Recover converts handler panics into 500 responses.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.FromContext(r.Context()).Errorw("handler panic",
				"panic", fmt.Sprint(v), "stack", string(debug.Stack()))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
