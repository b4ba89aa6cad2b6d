// Package httpapi is the thin HTTP binding over the identity core: it
// decodes JSON, resolves tenant/session context, calls into the core
// packages, and serializes the documented error wire format. It owns no
// domain logic of its own.
package httpapi

import (
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/authproviders/anonymous"
	"github.com/lightbasehq/corehub/internal/authproviders/digid"
	"github.com/lightbasehq/corehub/internal/authproviders/keycloak"
	"github.com/lightbasehq/corehub/internal/authproviders/password"
	"github.com/lightbasehq/corehub/internal/authproviders/totp"
	"github.com/lightbasehq/corehub/internal/config"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/featureflag"
	"github.com/lightbasehq/corehub/internal/impersonation"
	"github.com/lightbasehq/corehub/internal/management"
	"github.com/lightbasehq/corehub/internal/permission"
	"github.com/lightbasehq/corehub/internal/ratelimit"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/tenant"
	"github.com/lightbasehq/corehub/internal/user"
)

// App bundles every dependency the route handlers need. It is built once
// at startup in cmd/server and never mutated afterward — each handler
// reads off it the way the teacher's controllers read off a constructed
// dependency struct rather than package-level globals.
type App struct {
	Cfg *config.Config

	Tenants     *tenant.Resolver
	TenantCache *tenant.Cache

	Sessions *session.Store
	Tail     *authproviders.Tail

	Users *user.Directory
	Perms *permission.Engine

	Password  *password.Provider
	Anonymous *anonymous.Provider
	Digid     *digid.Provider
	Keycloak  *keycloak.Provider
	Totp      *totp.Provider

	FeatureFlags  *featureflag.Engine
	RateLimiter   *ratelimit.Limiter
	Impersonation *impersonation.Service
	Management    *management.Service

	Bus eventbus.Bus
}
