// Package permission implements the RBAC catalog sync, mandatory-role
// sync, and per-user role administration (spec.md §4.2).
package permission

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/config"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/store/postgres"
)

const manageCapability = "auth:permission:manage"

// advisoryLockKey mirrors internal/tenant's; startup sync for
// permissions and mandatory roles serializes under its own fixed key.
const advisoryLockKey = 7_002

// Engine mediates every permission/role operation against a
// PermissionRepository.
type Engine struct {
	repo domain.PermissionRepository
}

func New(repo domain.PermissionRepository) *Engine {
	return &Engine{repo: repo}
}

// Sync implements spec.md §4.2's startup synchronization: the
// permission catalog first, then each mandatory role, all under one
// cross-instance advisory lock.
func Sync(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
	declared := cfg.Permissions.Declared
	if hasDuplicates(declared) {
		return fmt.Errorf("permission: declared catalog contains duplicate identifiers")
	}
	if err := validateMandatoryRoleUniqueness(cfg.Permissions.MandatoryRoles); err != nil {
		return err
	}

	return postgres.AdvisoryLock(ctx, pool, advisoryLockKey, func(ctx context.Context, q postgres.Queryer) error {
		repo := postgres.NewPermissionRepo(q)

		if err := repo.SyncPermissions(ctx, declared); err != nil {
			return fmt.Errorf("permission: sync catalog: %w", err)
		}

		catalog, err := repo.ListPermissions(ctx)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(catalog))
		for _, p := range catalog {
			known[p.Identifier] = true
		}

		for _, spec := range cfg.Permissions.MandatoryRoles {
			if err := syncMandatoryRole(ctx, repo, spec, known); err != nil {
				return err
			}
		}
		return nil
	})
}

func syncMandatoryRole(ctx context.Context, repo domain.PermissionRepository, spec config.MandatoryRoleSpec, known map[string]bool) error {
	for _, p := range spec.Permissions {
		if !known[p] {
			return fmt.Errorf("permission: mandatory role %q declares undeclared permission %q — sync-permissions was skipped", spec.Identifier, p)
		}
	}

	var tenantID *string
	if spec.Tenant != "" {
		tenantID = &spec.Tenant
	}

	existing, err := repo.GetRoleByIdentifier(ctx, tenantID, spec.Identifier)
	switch {
	case err == domain.ErrNotFound:
		_, err := repo.CreateRole(ctx, domain.Role{
			Identifier:  spec.Identifier,
			TenantID:    tenantID,
			Mandatory:   true,
			Permissions: spec.Permissions,
		})
		return err
	case err != nil:
		return err
	default:
		return repo.SetRolePermissions(ctx, existing.ID, spec.Permissions)
	}
}

func validateMandatoryRoleUniqueness(roles []config.MandatoryRoleSpec) error {
	seen := make(map[string]bool)
	for _, r := range roles {
		key := r.Tenant + "\x00" + r.Identifier
		if seen[key] {
			return fmt.Errorf("permission: duplicate mandatory role identifier %q in scope %q", r.Identifier, r.Tenant)
		}
		seen[key] = true
	}
	return nil
}

func hasDuplicates(ids []string) bool {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}

// RequireManage checks the caller's permission set includes
// auth:permission:manage, the gate every administrative operation below
// shares.
func RequireManage(granted []string) error {
	for _, p := range granted {
		if p == manageCapability {
			return nil
		}
	}
	return apperr.Forbidden("authPermission.require.missingManageCapability")
}

// ListRoles returns every role visible to tenantID (global ∪
// tenant-scoped), marking editability per spec.md §4.2.
type RoleView struct {
	domain.Role
	IsEditable bool
}

func (e *Engine) ListRoles(ctx context.Context, tenantID string) ([]RoleView, error) {
	roles, err := e.repo.ListRoles(ctx, &tenantID)
	if err != nil {
		return nil, err
	}
	global, err := e.repo.ListRoles(ctx, nil)
	if err != nil {
		return nil, err
	}
	roles = append(roles, global...)

	out := make([]RoleView, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleView{
			Role:       r,
			IsEditable: !r.Mandatory && r.TenantID != nil,
		})
	}
	return out, nil
}

func (e *Engine) CreateRole(ctx context.Context, tenantID, identifier string, permissions []string) (domain.Role, error) {
	if _, err := e.repo.GetRoleByIdentifier(ctx, &tenantID, identifier); err == nil {
		return domain.Role{}, apperr.Validation("authPermission.createRole.duplicateIdentifier")
	}
	return e.repo.CreateRole(ctx, domain.Role{
		Identifier:  identifier,
		TenantID:    &tenantID,
		Permissions: permissions,
	})
}

func (e *Engine) DeleteRole(ctx context.Context, roleID string) error {
	role, err := e.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Mandatory {
		return apperr.Forbidden("authPermission.deleteRole.isStatic")
	}
	return e.repo.DeleteRole(ctx, roleID)
}

func (e *Engine) AddPermission(ctx context.Context, roleID, permission string) error {
	role, err := e.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, p := range role.Permissions {
		if p == permission {
			return nil // duplicates ignored on add
		}
	}
	return e.repo.SetRolePermissions(ctx, roleID, append(role.Permissions, permission))
}

func (e *Engine) RemovePermission(ctx context.Context, roleID, permission string) error {
	role, err := e.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	out := make([]string, 0, len(role.Permissions))
	found := false
	for _, p := range role.Permissions {
		if p == permission {
			found = true
			continue
		}
		out = append(out, p)
	}
	if !found {
		return apperr.Validation("authPermission.removePermission.notAssigned")
	}
	return e.repo.SetRolePermissions(ctx, roleID, out)
}

func (e *Engine) AssignUserRole(ctx context.Context, userID, roleID string) error {
	held, err := e.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return err
	}
	for _, r := range held {
		if r.ID == roleID {
			return apperr.Validation("authPermission.assignRole.alreadyAssigned")
		}
	}
	return e.repo.AssignUserRole(ctx, userID, roleID)
}

func (e *Engine) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	held, err := e.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return err
	}
	for _, r := range held {
		if r.ID == roleID {
			return e.repo.RemoveUserRole(ctx, userID, roleID)
		}
	}
	return apperr.Validation("authPermission.removeRole.notAssigned")
}

// SyncUserRoles replaces the user's full role assignment with
// targetRoleIDs, the userSyncRoles primitive of spec.md §4.2: the
// repository drops every current assignment and inserts each target.
// Exactly one of idIn/identifierIn must resolve to role ids by the
// caller before invoking this.
func (e *Engine) SyncUserRoles(ctx context.Context, userID string, targetRoleIDs []string) error {
	return e.repo.SyncUserRoles(ctx, userID, targetRoleIDs)
}

// UserSummary is the sorted permission/role view spec.md §4.2 calls
// the "user summary".
type UserSummary struct {
	Roles       []string
	Permissions []string
}

// UserSummary resolves the roles and permissions the user holds that
// apply in tenantID: global roles (TenantID nil) plus roles scoped to
// this tenant specifically. A role scoped to a different tenant is held
// by the user but does not contribute here.
func (e *Engine) UserSummary(ctx context.Context, userID, tenantID string) (UserSummary, error) {
	roles, err := e.repo.ListUserRoles(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		if r.TenantID != nil && *r.TenantID != tenantID {
			continue
		}
		roleNames = append(roleNames, r.Identifier)
	}
	perms, err := e.repo.UserPermissions(ctx, userID, tenantID)
	if err != nil {
		return UserSummary{}, err
	}
	sort.Strings(roleNames)
	sort.Strings(perms)
	return UserSummary{Roles: roleNames, Permissions: perms}, nil
}

// HasAll reports whether granted is a superset of required, the check
// User Directory's RequireUser runs against a loaded permission set.
func HasAll(granted, required []string) bool {
	set := make(map[string]bool, len(granted))
	for _, p := range granted {
		set[p] = true
	}
	for _, p := range required {
		if !set[p] {
			return false
		}
	}
	return true
}
