// Package management implements the operator self-provisioning flow
// (spec.md §4.8): identify via an external messaging platform, deliver a
// magic link, issue a short-lived elevated session from it, and clean up
// the transient user and chat thread afterward.
package management

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/authproviders"
	"github.com/lightbasehq/corehub/internal/config"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/eventbus"
	"github.com/lightbasehq/corehub/internal/session"
	"github.com/lightbasehq/corehub/internal/user"
)

// Directory is the external workspace directory an operator's id is
// checked against, and the channel a magic link and its cleanup
// notification travel over. The core has no opinion on which messaging
// platform backs this — callers wire a concrete implementation (Slack,
// Teams, ...); cmd/server wires DevDirectory (dev.go) instead.
type Directory interface {
	// IsKnownOperator reports whether userID is a valid workspace member
	// allowed to self-provision.
	IsKnownOperator(ctx context.Context, userID string) (bool, error)
	// DeliverMagicLink sends link to userID over the messaging platform
	// and returns an opaque thread handle for later cleanup.
	DeliverMagicLink(ctx context.Context, userID, link string) (threadID string, err error)
	// PurgeThread deletes the delivered message/thread.
	PurgeThread(ctx context.Context, threadID string) error
}

// Link is an outstanding, single-use magic-link grant.
type Link struct {
	Token     string
	UserID    string
	ThreadID  string
	ExpiresAt time.Time
	ConsumedAt *time.Time
}

// Store is the minimal persistence boundary for outstanding links and
// the transient users they provision — kept package-local rather than
// in internal/domain since nothing else in the system needs to know
// about management grants.
type Store interface {
	CreateLink(ctx context.Context, l Link) (Link, error)
	GetLink(ctx context.Context, token string) (Link, error)
	ConsumeLink(ctx context.Context, token string, at time.Time) error
	// ListExpiredTransientUsers returns the (userID, threadID) pairs the
	// daily cleanup job should delete.
	ListExpiredTransientUsers(ctx context.Context, olderThan time.Time) ([]TransientUser, error)
	DeleteTransientUser(ctx context.Context, userID string) error
	// RecordTransientUser tracks a user provisioned by Redeem so
	// CleanupExpired can find it later.
	RecordTransientUser(ctx context.Context, userID, threadID string) error
}

// TransientUser is a management-provisioned user awaiting cleanup.
type TransientUser struct {
	UserID   string
	ThreadID string
}

type Service struct {
	dir      Directory
	store    Store
	users    *user.Directory
	tail     *authproviders.Tail
	sess     *session.Store
	bus      eventbus.Bus
	cfg      config.Config
}

func New(dir Directory, store Store, users *user.Directory, tail *authproviders.Tail, sess *session.Store, bus eventbus.Bus, cfg config.Config) *Service {
	return &Service{dir: dir, store: store, users: users, tail: tail, sess: sess, bus: bus, cfg: cfg}
}

// RequestMagicLink checks userID against the workspace directory and
// delivers a magic link. In development the link is returned inline
// instead of delivered, per spec.md §4.8.
func (s *Service) RequestMagicLink(ctx context.Context, userID, baseURL string) (string, error) {
	if !s.cfg.Management.Enabled {
		return "", apperr.Forbidden("authManagement.requestMagicLink.disabled")
	}
	if userID != s.cfg.Management.AllowedUserID {
		return "", apperr.Forbidden("authManagement.requestMagicLink.unknownOperator")
	}
	known, err := s.dir.IsKnownOperator(ctx, userID)
	if err != nil {
		return "", apperr.Server("server.internal.authManagement.requestMagicLink", err)
	}
	if !known {
		return "", apperr.Forbidden("authManagement.requestMagicLink.unknownOperator")
	}

	token, err := randomToken()
	if err != nil {
		return "", apperr.Server("server.internal.authManagement.requestMagicLink", err)
	}
	ttl := s.ttl()
	link := baseURL + "?token=" + token

	threadID, err := s.dir.DeliverMagicLink(ctx, userID, link)
	if err != nil {
		return "", apperr.Server("server.internal.authManagement.requestMagicLink", err)
	}
	if _, err := s.store.CreateLink(ctx, Link{Token: token, UserID: userID, ThreadID: threadID, ExpiresAt: time.Now().Add(ttl)}); err != nil {
		return "", apperr.Server("server.internal.authManagement.requestMagicLink", err)
	}

	if s.cfg.App.Env == config.EnvDevelopment {
		return link, nil
	}
	return "", nil
}

func (s *Service) ttl() time.Duration {
	if s.cfg.Management.MagicLinkTTL == "" {
		return 15 * time.Minute
	}
	d, err := time.ParseDuration(s.cfg.Management.MagicLinkTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// Redeem consumes a magic-link token, provisions (or reuses) the
// transient user behind it, and issues the elevated session.
func (s *Service) Redeem(ctx context.Context, token, tenantID string) (domain.Session, session.TokenPair, error) {
	l, err := s.store.GetLink(ctx, token)
	if err == domain.ErrNotFound {
		return domain.Session{}, session.TokenPair{}, apperr.Unauthorized("authManagement.redeem.invalidToken")
	}
	if err != nil {
		return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authManagement.redeem", err)
	}
	if l.ConsumedAt != nil || time.Now().After(l.ExpiresAt) {
		return domain.Session{}, session.TokenPair{}, apperr.Unauthorized("authManagement.redeem.invalidToken")
	}

	u, err := s.users.Create(ctx, user.CreateInput{Tenants: []string{tenantID}})
	if err != nil {
		return domain.Session{}, session.TokenPair{}, err
	}
	if err := s.store.ConsumeLink(ctx, token, time.Now()); err != nil {
		return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authManagement.redeem", err)
	}
	if err := s.store.RecordTransientUser(ctx, u.ID, l.ThreadID); err != nil {
		return domain.Session{}, session.TokenPair{}, apperr.Server("server.internal.authManagement.redeem", err)
	}

	return s.tail.Run(ctx, "authManagement", authproviders.TailInput{
		UserID: u.ID, TenantID: tenantID,
		Type: domain.SessionTypeUser, TwoStep: domain.TwoStepNone,
	})
}

// CleanupExpired is the daily job: delete transient users and purge
// their chat threads.
func (s *Service) CleanupExpired(ctx context.Context, olderThan time.Time) (int, error) {
	pending, err := s.store.ListExpiredTransientUsers(ctx, olderThan)
	if err != nil {
		return 0, apperr.Server("server.internal.authManagement.cleanup", err)
	}
	n := 0
	for _, t := range pending {
		if err := s.users.SoftDelete(ctx, t.UserID); err != nil {
			continue
		}
		if err := s.store.DeleteTransientUser(ctx, t.UserID); err != nil {
			continue
		}
		if t.ThreadID != "" {
			_ = s.dir.PurgeThread(ctx, t.ThreadID)
		}
		n++
	}
	return n, nil
}

func randomToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
