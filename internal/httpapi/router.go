package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lightbasehq/corehub/internal/ratelimit"
)

// NewRouter builds the full chi.Mux per spec.md §6, wiring every route
// family the same way: requireTenant resolves the caller's tenant first,
// loadSession attaches an already-issued session when a bearer token is
// present, and requireSession/requirePermission gate the handlers that
// need one. Registration is grouped by route family, mirroring the
// deps-struct-plus-per-feature-registration shape the rest of this
// codebase's controllers follow.
func NewRouter(a *App) *chi.Mux {
	r := chi.NewRouter()

	r.Use(requireTenant(a.Tenants))
	r.Use(loadSession(a))
	r.Use(a.RateLimiter.Middleware(ratelimit.CostForPasswordRoutes))

	registerSessionRoutes(r, a)
	registerUserRoutes(r, a)
	registerPasswordRoutes(r, a)
	registerAnonymousRoutes(r, a)
	registerDigidRoutes(r, a)
	registerKeycloakRoutes(r, a)
	registerTotpRoutes(r, a)
	registerPermissionRoutes(r, a)
	registerTenantFeatureFlagRoutes(r, a)
	registerManagementRoutes(r, a)

	return r
}

func registerSessionRoutes(r chi.Router, a *App) {
	r.Get("/auth/me", a.handleMe)
	r.Post("/auth/refresh-tokens", a.handleRefreshTokens)
	r.Post("/auth/logout", requireSession(a.handleLogout))
	r.Post("/auth/impersonate-stop-session", requireSession(a.handleImpersonateStopSession))

	r.Get("/session/list", requireSession(a.handleSessionList))
	r.Post("/session/logout", requireSession(a.handleSessionLogout))
	r.Post("/session/set-notification-token", requireSession(a.handleSetNotificationToken))
}

func registerUserRoutes(r chi.Router, a *App) {
	r.Post("/auth/list-users", requirePermission(a, "auth:user:list")(a.handleListUsers))
	r.Get("/auth/user/{id}", requirePermission(a, "auth:user:list")(a.handleGetUser))
	r.Put("/auth/user/{id}/update", requirePermission(a, "auth:user:manage")(a.handleUpdateUser))
	r.Post("/auth/user/{id}/set-active", requirePermission(a, "auth:user:manage")(a.handleSetUserActive))
}

func registerPasswordRoutes(r chi.Router, a *App) {
	r.Post("/auth/password-based/login", a.handlePasswordLogin)
	r.Post("/auth/password-based/verify-otp", a.handlePasswordVerifyOtp)
	r.Post("/auth/password-based/verify-email", a.handlePasswordVerifyEmail)
	r.Post("/auth/password-based/forgot-password", a.handlePasswordForgot)
	r.Post("/auth/password-based/reset-password", a.handlePasswordReset)
	r.Post("/auth/password-based/list-emails", requireSession(a.handlePasswordListEmails))
	r.Post("/auth/password-based/update-email", requireSession(a.handlePasswordUpdateEmail))
	r.Post("/auth/password-based/update-password", requireSession(a.handlePasswordUpdatePassword))
}

func registerAnonymousRoutes(r chi.Router, a *App) {
	r.Post("/auth/anonymous-based/login", a.handleAnonymousLogin)
}

func registerDigidRoutes(r chi.Router, a *App) {
	r.Get("/auth/digid-based/metadata", a.handleDigidMetadata)
	r.Post("/auth/digid-based/redirect", a.handleDigidRedirect)
	r.Post("/auth/digid-based/login", a.handleDigidLogin)
}

func registerKeycloakRoutes(r chi.Router, a *App) {
	r.Post("/auth/keycloak-based/redirect", a.handleKeycloakRedirect)
	r.Post("/auth/keycloak-based/login", a.handleKeycloakLogin)
	r.Put("/auth/keycloak-based/user/{id}/update", requirePermission(a, "auth:user:manage")(a.handleKeycloakUserUpdate))
	r.Post("/auth/keycloak-based/create", requirePermission(a, "auth:user:manage")(a.handleKeycloakCreate))
}

func registerTotpRoutes(r chi.Router, a *App) {
	r.Get("/auth/totp-provider/info", requireSession(a.handleTotpInfo))
	r.Post("/auth/totp-provider/setup", requireSession(a.handleTotpSetup))
	r.Post("/auth/totp-provider/setup/verify", requireSession(a.handleTotpSetupVerify))
	r.Post("/auth/totp-provider/verify", requireSession(a.handleTotpVerify))
	r.Delete("/auth/totp-provider/remove", requireSession(a.handleTotpRemove))
	r.Delete("/auth/totp-provider/user/{id}/remove", requirePermission(a, "auth:totp:manage")(a.handleTotpRemoveForUser))
}

func registerPermissionRoutes(r chi.Router, a *App) {
	manage := func(h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
		return requirePermission(a, "auth:permission:manage")(h)
	}
	r.Get("/auth/permission/summary", requireSession(a.handlePermissionUserSummary))
	r.Get("/auth/permission/permission/list", manage(a.handlePermissionListPermissions))
	r.Get("/auth/permission/role/list", manage(a.handlePermissionListRoles))
	r.Post("/auth/permission/role", manage(a.handlePermissionCreateRole))
	r.Delete("/auth/permission/role/{id}", manage(a.handlePermissionDeleteRole))
	r.Post("/auth/permission/role/{id}/add-permissions", manage(a.handlePermissionAddToRole))
	r.Post("/auth/permission/role/{id}/remove-permissions", manage(a.handlePermissionRemoveFromRole))
	r.Post("/auth/permission/user/{id}/assign-role", manage(a.handlePermissionAssignUserRole))
	r.Post("/auth/permission/user/{id}/remove-role", manage(a.handlePermissionRemoveUserRole))
	r.Get("/auth/permission/user/{id}/summary", manage(a.handlePermissionUserSummary))
}

func registerTenantFeatureFlagRoutes(r chi.Router, a *App) {
	r.Get("/multitenant/current", a.handleCurrentTenant)
	r.Get("/feature-flag/current", a.handleCurrentFeatureFlags)
	r.Post("/_lightbase/management/feature-flag", requirePermission(a, "auth:featureFlag:manage")(a.handleSetFeatureFlag))
}

func registerManagementRoutes(r chi.Router, a *App) {
	r.Post("/_lightbase/management/request-magic-link", a.handleRequestMagicLink)
	r.Post("/_lightbase/management/redeem-magic-link", a.handleRedeemMagicLink)
	r.Get("/_lightbase/management/tenant/{name}", requirePermission(a, "auth:user:list")(a.handleGetTenant))
}
