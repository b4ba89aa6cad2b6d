package domain

import (
	"context"
	"time"
)

// PasswordLogin is the password-provider credential row for one user in
// one tenant (spec.md §4.5.1). The hash is opaque to this package; it is
// produced and verified exclusively by internal/authproviders/password.
type PasswordLogin struct {
	ID               string
	UserID           string
	TenantID         string
	Email            string
	PasswordHash     string
	VerifiedAt       *time.Time
	RequiresRotation bool
	// OtpEnabledAt/OtpSecret back the login-time second factor spec.md
	// §4.5.1 step 6 describes: once set, every successful password
	// check returns a checkTwoStep addendum instead of a user session.
	OtpEnabledAt *time.Time
	OtpSecret    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PasswordLoginReset is an outstanding forgot-password or activation
// token, single-use and time-bounded.
type PasswordLoginReset struct {
	ID              string
	PasswordLoginID string
	Token           string
	ExpiresAt       time.Time
	ConsumedAt      *time.Time
	CreatedAt       time.Time
}

// PasswordLoginAttempt records one login attempt for the per-credential
// lockout counter: login is refused while the failures counted by
// CountRecentFailures reach the provider's limit, and the lock lifts as
// those failures age out of the five-minute window.
type PasswordLoginAttempt struct {
	ID              string
	PasswordLoginID string
	Succeeded       bool
	CreatedAt       time.Time
}

type PasswordLoginRepository interface {
	GetByEmail(ctx context.Context, tenantID, email string) (PasswordLogin, error)
	GetByID(ctx context.Context, id string) (PasswordLogin, error)
	GetByUserID(ctx context.Context, tenantID, userID string) (PasswordLogin, error)
	// ListByUserID returns every password login the user holds across
	// every tenant, the set backing the "list-emails" operation.
	ListByUserID(ctx context.Context, userID string) ([]PasswordLogin, error)
	Create(ctx context.Context, pl PasswordLogin) (PasswordLogin, error)
	UpdateHash(ctx context.Context, id, hash string, requiresRotation bool) error
	SetVerifiedAt(ctx context.Context, id string, at time.Time) error
	SetOtpSecret(ctx context.Context, id, secret string, enabledAt time.Time) error
	Delete(ctx context.Context, id string) error

	CreateReset(ctx context.Context, r PasswordLoginReset) (PasswordLoginReset, error)
	GetResetByToken(ctx context.Context, token string) (PasswordLoginReset, error)
	ConsumeReset(ctx context.Context, id string, at time.Time) error

	RecordAttempt(ctx context.Context, a PasswordLoginAttempt) error
	// CountRecentFailures counts failed attempts made in the last five
	// minutes and after the last success, the window the lockout decision
	// is based on.
	CountRecentFailures(ctx context.Context, passwordLoginID string) (int, error)
	ClearAttempts(ctx context.Context, passwordLoginID string) error
}
