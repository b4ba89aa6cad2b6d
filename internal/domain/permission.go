package domain

import (
	"context"
	"time"
)

// Permission is a declared capability string (e.g. "users.write"). The
// catalog is config-declared (spec.md §4.2) and synced into storage at
// startup; Permission rows are never created by request handling.
type Permission struct {
	ID         string
	Identifier string
	CreatedAt  time.Time
}

// Role groups permissions, optionally scoped to a single tenant. A
// tenant-scoped role (TenantID != nil) only grants within that tenant; a
// global role (TenantID == nil) grants everywhere the user is a member.
type Role struct {
	ID          string
	Identifier  string
	TenantID    *string
	Mandatory   bool
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRole assigns a Role to a User.
type UserRole struct {
	UserID    string
	RoleID    string
	CreatedAt time.Time
}

// PermissionRepository is the storage boundary for the permission engine
// (spec.md §4.2): catalog sync, mandatory-role sync, and per-user role
// assignment / summary queries.
type PermissionRepository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	SyncPermissions(ctx context.Context, identifiers []string) error

	ListRoles(ctx context.Context, tenantID *string) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByIdentifier(ctx context.Context, tenantID *string, identifier string) (Role, error)
	CreateRole(ctx context.Context, r Role) (Role, error)
	DeleteRole(ctx context.Context, id string) error
	SetRolePermissions(ctx context.Context, roleID string, identifiers []string) error

	ListUserRoles(ctx context.Context, userID string) ([]Role, error)
	AssignUserRole(ctx context.Context, userID, roleID string) error
	RemoveUserRole(ctx context.Context, userID, roleID string) error
	SyncUserRoles(ctx context.Context, userID string, roleIDs []string) error

	// UserPermissions returns the resolved, deduplicated permission set
	// a user holds within tenantID, combining tenant-scoped and global
	// role grants (spec.md §4.2 — "permission summary").
	UserPermissions(ctx context.Context, userID, tenantID string) ([]string, error)
}
