package httpapi

import (
	"net/http"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/permission"
	"github.com/lightbasehq/corehub/internal/tenant"
)

// requireTenant resolves the tenant per spec.md §4.1 and rejects the
// request with the documented validation error when no tenant matches.
func requireTenant(t *tenant.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolved, err := t.ResolveFromRequest(tenant.RequestHeaders{
				Host:             r.Host,
				Origin:           r.Header.Get("Origin"),
				XLpcTenantOrigin: r.Header.Get("X-Lpc-Tenant-Origin"),
			})
			if err != nil {
				writeError(w, r, err)
				return
			}
			r = r.WithContext(withTenant(r.Context(), resolved))
			next.ServeHTTP(w, r)
		})
	}
}

// loadSession attaches the bearer token's session to the request context
// when present; it never rejects a request on its own — routes that need
// an authenticated caller wrap themselves in requireSession as well.
func loadSession(app *App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := bearerToken(r); tok != "" {
				if sess, err := app.Sessions.Load(r.Context(), tok); err == nil {
					r = r.WithContext(withSession(r.Context(), sess))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionFromCtx(r.Context()) == nil {
			writeError(w, r, apperr.Unauthorized("session.require.missing"))
			return
		}
		next(w, r)
	}
}

// requirePermission loads the caller's resolved permission set and
// rejects with 403 unless it is a superset of required.
func requirePermission(app *App, required ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return requireSession(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFromCtx(r.Context())
			summary, err := app.Perms.UserSummary(r.Context(), sess.UserID, sess.TenantID)
			if err != nil {
				writeError(w, r, apperr.Server("server.internal.httpapi.requirePermission", err))
				return
			}
			if !permission.HasAll(summary.Permissions, required) {
				writeError(w, r, apperr.Forbidden("authPermission.require.missingCapability"))
				return
			}
			next(w, r)
		})
	}
}
