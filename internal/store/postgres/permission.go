package postgres

import (
	"context"

	"github.com/lightbasehq/corehub/internal/domain"
)

type PermissionRepo struct{ q Queryer }

func NewPermissionRepo(q Queryer) *PermissionRepo { return &PermissionRepo{q: q} }

func (r *PermissionRepo) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	rows, err := r.q.Query(ctx, `SELECT id, identifier, created_at FROM permission ORDER BY identifier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Identifier, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SyncPermissions inserts any identifier missing from the catalog and
// removes any catalog row no longer declared, the set-reconciliation
// startup performs against config.Permissions.Declared (spec.md §4.2).
func (r *PermissionRepo) SyncPermissions(ctx context.Context, identifiers []string) error {
	const upsert = `
		INSERT INTO permission (id, identifier, created_at)
		VALUES (gen_random_uuid(), $1, NOW())
		ON CONFLICT (identifier) DO NOTHING
	`
	for _, id := range identifiers {
		if _, err := r.q.Exec(ctx, upsert, id); err != nil {
			return err
		}
	}
	const prune = `DELETE FROM permission WHERE NOT (identifier = ANY($1))`
	_, err := r.q.Exec(ctx, prune, identifiers)
	return err
}

func (r *PermissionRepo) ListRoles(ctx context.Context, tenantID *string) ([]domain.Role, error) {
	const query = `
		SELECT id, identifier, tenant_id, mandatory, permissions, created_at, updated_at
		FROM role WHERE ($1::text IS NULL AND tenant_id IS NULL) OR tenant_id = $1
		ORDER BY identifier
	`
	rows, err := r.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (r *PermissionRepo) GetRole(ctx context.Context, id string) (domain.Role, error) {
	const query = `
		SELECT id, identifier, tenant_id, mandatory, permissions, created_at, updated_at
		FROM role WHERE id = $1
	`
	role, err := scanRole(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Role{}, mapNoRows(err)
	}
	return role, nil
}

func (r *PermissionRepo) GetRoleByIdentifier(ctx context.Context, tenantID *string, identifier string) (domain.Role, error) {
	const query = `
		SELECT id, identifier, tenant_id, mandatory, permissions, created_at, updated_at
		FROM role
		WHERE identifier = $2 AND ((tenant_id IS NULL AND $1::text IS NULL) OR tenant_id = $1)
	`
	role, err := scanRole(r.q.QueryRow(ctx, query, tenantID, identifier))
	if err != nil {
		return domain.Role{}, mapNoRows(err)
	}
	return role, nil
}

func (r *PermissionRepo) CreateRole(ctx context.Context, role domain.Role) (domain.Role, error) {
	const query = `
		INSERT INTO role (id, identifier, tenant_id, mandatory, permissions, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW(), NOW())
		RETURNING id, identifier, tenant_id, mandatory, permissions, created_at, updated_at
	`
	return scanRole(r.q.QueryRow(ctx, query, role.Identifier, role.TenantID, role.Mandatory, role.Permissions))
}

func (r *PermissionRepo) DeleteRole(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM role WHERE id = $1 AND mandatory = false`, id)
	return err
}

func (r *PermissionRepo) SetRolePermissions(ctx context.Context, roleID string, identifiers []string) error {
	_, err := r.q.Exec(ctx, `UPDATE role SET permissions = $2, updated_at = NOW() WHERE id = $1`, roleID, identifiers)
	return err
}

func (r *PermissionRepo) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	const query = `
		SELECT r.id, r.identifier, r.tenant_id, r.mandatory, r.permissions, r.created_at, r.updated_at
		FROM role r JOIN user_role ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
	`
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *PermissionRepo) AssignUserRole(ctx context.Context, userID, roleID string) error {
	const query = `
		INSERT INTO user_role (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`
	_, err := r.q.Exec(ctx, query, userID, roleID)
	return err
}

func (r *PermissionRepo) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM user_role WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// SyncUserRoles replaces a user's full role assignment set without a
// transaction of its own — one DELETE, then one INSERT per role id — the
// primitive userSyncRoles (spec.md §4.2) builds on.
func (r *PermissionRepo) SyncUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM user_role WHERE user_id = $1`, userID); err != nil {
		return err
	}
	const insert = `INSERT INTO user_role (user_id, role_id, created_at) VALUES ($1, $2, NOW())`
	for _, roleID := range roleIDs {
		if _, err := r.q.Exec(ctx, insert, userID, roleID); err != nil {
			return err
		}
	}
	return nil
}

func (r *PermissionRepo) UserPermissions(ctx context.Context, userID, tenantID string) ([]string, error) {
	const query = `
		SELECT DISTINCT perm
		FROM role r
		JOIN user_role ur ON ur.role_id = r.id
		CROSS JOIN LATERAL unnest(r.permissions) AS perm
		WHERE ur.user_id = $1 AND (r.tenant_id IS NULL OR r.tenant_id = $2)
	`
	rows, err := r.q.Query(ctx, query, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanRole(row rowScanner) (domain.Role, error) {
	var r domain.Role
	if err := row.Scan(&r.ID, &r.Identifier, &r.TenantID, &r.Mandatory, &r.Permissions, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return domain.Role{}, err
	}
	return r, nil
}
