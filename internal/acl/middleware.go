// internal/acl/middleware.go
//
// Chi middleware helpers that attach the acting user and enforce RBAC.

package acl

import (
	"database/sql"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/auth"
)

// UserHeader carries the authenticated user id set by the fronting auth
// proxy.  Requests without it run as the anonymous actor.
const UserHeader = "X-PDB-User"

// ResolveActor loads the caller's capability and stores an auth.Actor in
// the request context.
func ResolveActor(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			uid, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || uid <= 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			c, err := UserCapability(r.Context(), db, uid)
			if err != nil {
				zap.L().Error("acl user capability", zap.Int64("user", uid), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx := auth.WithActor(r.Context(), auth.Actor{UserID: uid, Capability: c})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects callers below min.  Anonymous callers get 401,
// authenticated but under-privileged callers get 403.
func RequireCapability(min auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := auth.ActorFrom(r.Context())
			if a.UserID == 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !a.AtLeast(min) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission verifies that the user's roles allow component/action.
// Administrators pass without a role_acl lookup.
func RequirePermission(db *sql.DB, component, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := auth.ActorFrom(r.Context())
			if a.UserID == 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if a.AtLeast(auth.Administrator) {
				next.ServeHTTP(w, r)
				return
			}

			roles, err := UserRoles(r.Context(), db, a.UserID)
			if err != nil {
				zap.L().Error("acl user roles", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			allowed, err := RoleAllowed(r.Context(), db, roles, component, action)
			if err != nil {
				zap.L().Error("acl role allowed", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
