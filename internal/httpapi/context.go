package httpapi

import (
	"context"

	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/tenant"
)

type ctxKey int

const (
	ctxTenant ctxKey = iota
	ctxSession
)

func withTenant(ctx context.Context, t *tenant.Resolved) context.Context {
	return context.WithValue(ctx, ctxTenant, t)
}

// tenantFromCtx returns the resolved tenant attached by requireTenant.
func tenantFromCtx(ctx context.Context) *tenant.Resolved {
	t, _ := ctx.Value(ctxTenant).(*tenant.Resolved)
	return t
}

func withSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, ctxSession, &s)
}

// sessionFromCtx returns the session attached by loadSession, or nil if
// the request carried no valid bearer token.
func sessionFromCtx(ctx context.Context) *domain.Session {
	s, _ := ctx.Value(ctxSession).(*domain.Session)
	return s
}
