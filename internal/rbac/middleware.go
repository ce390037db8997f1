package rbac

import (
	"log/slog"
	"net/http"

	"github.com/warden-rbac/warden/internal/shared"
)

// Middleware wires authorization guards for HTTP handlers. Guards deny with
// 403 when no identity was resolved or the checks fail; the engine itself
// never errors on unknown identities.
type Middleware struct {
	Engine *Engine
	Logger *slog.Logger
}

// RequireAny admits the request when the caller passes at least one check.
func (m Middleware) RequireAny(checks ...Check) func(http.Handler) http.Handler {
	return m.guard(checks, func(e *Engine, r *http.Request, userID string) (bool, error) {
		return e.HasAnyPermission(r.Context(), userID, checks)
	})
}

// RequireAll admits the request only when the caller passes every check.
func (m Middleware) RequireAll(checks ...Check) func(http.Handler) http.Handler {
	return m.guard(checks, func(e *Engine, r *http.Request, userID string) (bool, error) {
		return e.HasAllPermissions(r.Context(), userID, checks)
	})
}

func (m Middleware) guard(checks []Check, allow func(*Engine, *http.Request, string) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(checks) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := allow(m.Engine, r, userID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authz guard", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
