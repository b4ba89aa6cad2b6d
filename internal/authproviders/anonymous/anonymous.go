// Package anonymous implements the device-bound, credential-less
// provider (spec.md §4.5.2): a login token with no password, promotable
// later to a durable identity via internal/user.Merge.
package anonymous

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/user"
)

// Provider mediates anonymous-login registration and authentication.
type Provider struct {
	logins domain.AnonymousLoginRepository
	users  *user.Directory
	tail   *authproviders.Tail
	bus    eventbus.Bus
}

func New(logins domain.AnonymousLoginRepository, users *user.Directory, tail *authproviders.Tail, bus eventbus.Bus) *Provider {
	return &Provider{logins: logins, users: users, tail: tail, bus: bus}
}

type LoginInput struct {
	TenantID          string
	LoginToken        string
	ExistingSessionID string
	Device            *authproviders.DeviceInfo
}

func (p *Provider) Login(ctx context.Context, in LoginInput) (domain.Session, session.TokenPair, error) {
	al, err := p.logins.GetByDeviceKey(ctx, in.TenantID, in.LoginToken)
	if err == domain.ErrNotFound {
		return domain.Session{}, session.TokenPair{}, apperr.Unauthorized("authAnonymousBased.login.unknownToken")
	}
	if err != nil {
		return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authAnonymousBased.login", err)
	}
	if !al.IsAllowedToLogin {
		return domain.Session{}, session.TokenPair{}, apperr.Validation("authAnonymousBased.login.tokenIsNotAllowedToLogin")
	}

	u, err := p.users.Lookup(ctx, al.UserID)
	if err != nil {
		return domain.Session{}, session.TokenPair{}, err
	}
	if u.IsDeleted() {
		return domain.Session{}, session.TokenPair{}, apperr.Unauthorized("authAnonymousBased.login.unknownToken")
	}
	if err := p.users.UpdateLastLogin(ctx, u.ID, time.Now()); err != nil {
		return domain.Session{}, session.TokenPair{}, err
	}

	return p.tail.Run(ctx, "authAnonymousBased", authproviders.TailInput{
		UserID: u.ID, TenantID: in.TenantID,
		Type: domain.SessionTypeUser, LoginType: domain.LoginTypeAnonymous, TwoStep: domain.TwoStepNone,
		ExistingSessionID: in.ExistingSessionID, Device: in.Device,
	})
}

// RegisterInput backs the transactional register step, called on an
// already-created user.
type RegisterInput struct {
	UserID   string
	TenantID string
}

// Register inserts an anonymousLogin with a fresh opaque token
// ("auth-anonymous-<uuid>") and enqueues the documented event. Must run
// inside the caller's transaction.
func (p *Provider) Register(ctx context.Context, in RegisterInput) (domain.AnonymousLogin, error) {
	token := "auth-anonymous-" + uuid.NewString()
	al, err := p.logins.Create(ctx, domain.AnonymousLogin{UserID: in.UserID, TenantID: in.TenantID, DeviceKey: token, IsAllowedToLogin: true})
	if err != nil {
		return domain.AnonymousLogin{}, apperr.Server("server.internal.authAnonymousBased.register", err)
	}
	_ = p.bus.Enqueue(ctx, eventbus.Event{Name: "auth.anonymousBased.userRegistered", Payload: map[string]any{"userId": in.UserID}})
	return al, nil
}

// GetSessionForUser converts a user already holding an anonymousLogin
// into a session seed without issuing tokens — the helper spec.md
// §4.5.2 names for callers that need the session shape ahead of the
// tail (e.g. a merge that inherits the loser's anonymous session type).
func (p *Provider) GetSessionForUser(userID, tenantID string) authproviders.TailInput {
	return authproviders.TailInput{
		UserID: userID, TenantID: tenantID,
		Type: domain.SessionTypeUser, LoginType: domain.LoginTypeAnonymous, TwoStep: domain.TwoStepNone,
	}
}
