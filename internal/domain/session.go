package domain

import "context"
import "time"

// SessionType distinguishes a fully promoted session from one still
// pending its second factor (spec.md §4.4: routes gate on
// type == "user" unless they opt out of the check).
type SessionType string

const (
	SessionTypeUser         SessionType = "user"
	SessionTypeCheckTwoStep SessionType = "checkTwoStep"
)

// LoginType records which provider authenticated the session (spec.md
// §4.5 — "some routes require a specific login type, not just an
// authenticated session").
type LoginType string

const (
	LoginTypePassword  LoginType = "passwordBased"
	LoginTypeAnonymous LoginType = "anonymousBased"
	LoginTypeDigid     LoginType = "digidBased"
	LoginTypeKeycloak  LoginType = "keycloakBased"
)

// TwoStepType records which second factor, if any, this session
// satisfied during login (spec.md §4.5.5).
type TwoStepType string

const (
	TwoStepNone TwoStepType = ""
	TwoStepTotp TwoStepType = "totp"
)

// Session is one authenticated session: a chain of rotating refresh
// tokens anchored to a stable SessionID (spec.md §4.3). The access/
// refresh JWTs the client holds are not stored; only the chain's
// bookkeeping — current token ID, checksum, and revocation state — is
// persisted.
type Session struct {
	ID         string
	UserID     string
	TenantID   string
	Type       SessionType
	LoginType  LoginType
	TwoStep    TwoStepType
	DeviceID   *string
	// ImpersonatorUserID is set when a management operator is
	// impersonating UserID; the session still authenticates as
	// UserID, but audit and the stop-impersonation operation need the
	// operator's identity (spec.md §4.9).
	ImpersonatorUserID *string

	CurrentTokenID string
	Checksum       string
	RevokedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

func (s Session) IsRevoked() bool { return s.RevokedAt != nil }

// SessionToken is one link of a session's refresh-token chain. Rotating
// the refresh token inserts a new SessionToken and marks the previous one
// used; presenting an already-used token is the replay signal that
// revokes the whole chain (spec.md §4.3, §8).
type SessionToken struct {
	ID        string
	SessionID string
	TokenID   string
	UsedAt    *time.Time
	CreatedAt time.Time
}

type SessionRepository interface {
	Create(ctx context.Context, s Session) (Session, error)
	GetByID(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, s Session) error
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
	ListActiveForUser(ctx context.Context, userID string) ([]Session, error)

	AppendToken(ctx context.Context, t SessionToken) (SessionToken, error)
	GetToken(ctx context.Context, sessionID, tokenID string) (SessionToken, error)
	MarkTokenUsed(ctx context.Context, id string, at time.Time) error
}
