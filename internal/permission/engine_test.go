package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbasehq/corehub/internal/domain"
)

type fakeSummaryRepo struct {
	rolesByUser map[string][]domain.Role
}

func (r fakeSummaryRepo) ListPermissions(ctx context.Context) ([]domain.Permission, error) { return nil, nil }
func (r fakeSummaryRepo) SyncPermissions(ctx context.Context, identifiers []string) error  { return nil }
func (r fakeSummaryRepo) ListRoles(ctx context.Context, tenantID *string) ([]domain.Role, error) {
	return nil, nil
}
func (r fakeSummaryRepo) GetRole(ctx context.Context, id string) (domain.Role, error) {
	return domain.Role{}, domain.ErrNotFound
}
func (r fakeSummaryRepo) GetRoleByIdentifier(ctx context.Context, tenantID *string, identifier string) (domain.Role, error) {
	return domain.Role{}, domain.ErrNotFound
}
func (r fakeSummaryRepo) CreateRole(ctx context.Context, role domain.Role) (domain.Role, error) {
	return role, nil
}
func (r fakeSummaryRepo) DeleteRole(ctx context.Context, id string) error { return nil }
func (r fakeSummaryRepo) SetRolePermissions(ctx context.Context, roleID string, identifiers []string) error {
	return nil
}
func (r fakeSummaryRepo) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	return r.rolesByUser[userID], nil
}
func (r fakeSummaryRepo) AssignUserRole(ctx context.Context, userID, roleID string) error { return nil }
func (r fakeSummaryRepo) RemoveUserRole(ctx context.Context, userID, roleID string) error { return nil }
func (r fakeSummaryRepo) SyncUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	return nil
}

// UserPermissions mirrors the tenant-scoped SQL in
// internal/store/postgres/permission.go: global roles (TenantID nil)
// plus roles scoped to tenantID specifically.
func (r fakeSummaryRepo) UserPermissions(ctx context.Context, userID, tenantID string) ([]string, error) {
	set := make(map[string]bool)
	for _, role := range r.rolesByUser[userID] {
		if role.TenantID != nil && *role.TenantID != tenantID {
			continue
		}
		for _, p := range role.Permissions {
			set[p] = true
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out, nil
}

func TestHasAll(t *testing.T) {
	cases := []struct {
		name     string
		granted  []string
		required []string
		want     bool
	}{
		{"empty required always satisfied", []string{}, nil, true},
		{"exact match", []string{"auth:user:list"}, []string{"auth:user:list"}, true},
		{"superset satisfies", []string{"auth:user:list", "auth:user:manage"}, []string{"auth:user:list"}, true},
		{"missing one fails", []string{"auth:user:list"}, []string{"auth:user:list", "auth:user:manage"}, false},
		{"disjoint fails", []string{"auth:user:list"}, []string{"auth:permission:manage"}, false},
		{"nil granted with required fails", nil, []string{"auth:user:list"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasAll(tc.granted, tc.required))
		})
	}
}

// TestUserSummary_ScopesRolesToTenant pins the fix for a role scoped to
// a different tenant leaking into the resolved summary: a role held in
// tenant B must not grant its permissions while the caller acts in
// tenant A, only global (nil-tenant) and tenant-A-scoped roles may.
func TestUserSummary_ScopesRolesToTenant(t *testing.T) {
	tenantA, tenantB := "acme", "globex"
	repo := fakeSummaryRepo{rolesByUser: map[string][]domain.Role{
		"u1": {
			{ID: "r-global", Identifier: "support", TenantID: nil, Permissions: []string{"auth:user:list"}},
			{ID: "r-a", Identifier: "admin-acme", TenantID: &tenantA, Permissions: []string{"auth:permission:manage"}},
			{ID: "r-b", Identifier: "admin-globex", TenantID: &tenantB, Permissions: []string{"auth:user:manage"}},
		},
	}}
	e := New(repo)

	summary, err := e.UserSummary(context.Background(), "u1", tenantA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"support", "admin-acme"}, summary.Roles)
	assert.ElementsMatch(t, []string{"auth:user:list", "auth:permission:manage"}, summary.Permissions)
	assert.NotContains(t, summary.Permissions, "auth:user:manage", "a role scoped to a different tenant must not contribute permissions")
}
