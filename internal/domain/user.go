package domain

import (
	"context"
	"time"
)

// User is a tenant-independent identity. A single User may be registered
// in several tenants (UserTenant) and may hold several login methods
// (PasswordLogin, AnonymousLogin, DigidLogin, KeycloakLogin) at once
// (spec.md §3 — "a user is never tied to exactly one login method").
type User struct {
	ID          string
	DisplayName *string
	LastLoginAt *time.Time
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsDeleted reports whether the user has been soft-deleted.
func (u User) IsDeleted() bool { return u.DeletedAt != nil }

// UserTenant is the join row granting a User membership of a Tenant.
// Role assignments are held separately, as UserRole rows.
type UserTenant struct {
	UserID    string
	TenantID  string
	CreatedAt time.Time
}

// UserRepository is the directory's storage boundary. Create and Merge
// are expected to run inside a transaction: implementations bind a
// Queryer at construction, and postgres.DB.WithTx supplies one backed by
// a transaction. The interface itself does not check that a transaction
// is active.
type UserRepository interface {
	Create(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Update(ctx context.Context, u User) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	Reactivate(ctx context.Context, id string) error

	AddTenant(ctx context.Context, userID, tenantID string) error
	RemoveTenant(ctx context.Context, userID, tenantID string) error
	ListTenants(ctx context.Context, userID string) ([]UserTenant, error)
	IsMember(ctx context.Context, userID, tenantID string) (bool, error)

	// ListByTenant pages through every user holding a membership row in
	// tenantID, ordered by creation time, backing the "list-users"
	// operator read.
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]User, error)

	// Merge re-targets every foreign-key reference from loserID to
	// winnerID, then deletes the loser row. Implementations drive this
	// off the declarative FK allowlist mergeForeignKeyTables in
	// internal/store/postgres/user.go rather
	// than introspecting the schema at runtime (spec.md §9, Open
	// Question 9(b)).
	Merge(ctx context.Context, winnerID, loserID string) error
}
