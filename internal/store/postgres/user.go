package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lightbasehq/corehub/internal/domain"
)

type UserRepo struct{ q Queryer }

func NewUserRepo(q Queryer) *UserRepo { return &UserRepo{q: q} }

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	const query = `
		INSERT INTO app_user (id, display_name, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, NOW(), NOW())
		RETURNING id, display_name, last_login_at, deleted_at, created_at, updated_at
	`
	row := r.q.QueryRow(ctx, query, u.DisplayName)
	return scanUser(row)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, display_name, last_login_at, deleted_at, created_at, updated_at
		FROM app_user WHERE id = $1
	`
	u, err := scanUser(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, mapNoRows(err)
	}
	return u, nil
}

func (r *UserRepo) Update(ctx context.Context, u domain.User) error {
	const query = `
		UPDATE app_user SET display_name = $2, last_login_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.q.Exec(ctx, query, u.ID, u.DisplayName, u.LastLoginAt)
	return err
}

func (r *UserRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE app_user SET deleted_at = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, at)
	return err
}

func (r *UserRepo) Reactivate(ctx context.Context, id string) error {
	const query = `UPDATE app_user SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id)
	return err
}

func (r *UserRepo) AddTenant(ctx context.Context, userID, tenantID string) error {
	const query = `
		INSERT INTO user_tenant (user_id, tenant_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`
	_, err := r.q.Exec(ctx, query, userID, tenantID)
	return err
}

func (r *UserRepo) RemoveTenant(ctx context.Context, userID, tenantID string) error {
	const query = `DELETE FROM user_tenant WHERE user_id = $1 AND tenant_id = $2`
	_, err := r.q.Exec(ctx, query, userID, tenantID)
	return err
}

func (r *UserRepo) ListTenants(ctx context.Context, userID string) ([]domain.UserTenant, error) {
	const query = `SELECT user_id, tenant_id, created_at FROM user_tenant WHERE user_id = $1`
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserTenant
	for rows.Next() {
		var ut domain.UserTenant
		if err := rows.Scan(&ut.UserID, &ut.TenantID, &ut.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ut)
	}
	return out, rows.Err()
}

func (r *UserRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]domain.User, error) {
	const query = `
		SELECT u.id, u.display_name, u.last_login_at, u.deleted_at, u.created_at, u.updated_at
		FROM app_user u
		JOIN user_tenant ut ON ut.user_id = u.id
		WHERE ut.tenant_id = $1
		ORDER BY u.created_at
		LIMIT $2 OFFSET $3
	`
	rows, err := r.q.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) IsMember(ctx context.Context, userID, tenantID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM user_tenant WHERE user_id = $1 AND tenant_id = $2)`
	var exists bool
	err := r.q.QueryRow(ctx, query, userID, tenantID).Scan(&exists)
	return exists, err
}

// mergeForeignKeyTables is the declarative allowlist of the tables whose
// user reference Merge re-targets, keyed by the column to re-target
// (spec.md §9, Open Question 9(b)): a new user-owned table needs a line here, a deliberate, reviewable cost compared to a
// forgettable runtime information_schema scan that could silently skip a
// table added after this list was written.
//
// Identity/attachment tables — password_login, anonymous_login,
// digid_login, keycloak_login, totp_settings, user_role, user_tenant —
// are deliberately absent: spec.md §4.4 excludes them from blind
// re-targeting, since winner and loser may each already hold one and a
// naive UPDATE would violate the per-tenant uniqueness constraint.
// internal/user.Merge's Before/After hooks are where a caller decides,
// per attachment, whether to drop the loser's row, keep the winner's, or
// abort the merge entirely. management_transient_user.user_id and
// session.impersonator_user_id are not listed either: deleting the loser
// cascades the former and sets the latter to NULL.
var mergeForeignKeyTables = []struct {
	table  string
	column string
}{
	{"device", "user_id"},
	{"feature_flag", "user_id"},
}

// Merge re-targets every row owned by loserID onto winnerID across the
// tables in mergeForeignKeyTables, then deletes the loser. The loser's
// identity/attachment rows are expected to already have been resolved by
// the caller's Before hook (internal/user.MergeHooks) before this runs,
// since they are excluded from this table list. Sessions are excluded
// too, deliberately: a merged-away identity's sessions are invalidated,
// not re-targeted — the loser's row deletion cascades (ON DELETE
// CASCADE on session.user_id) and drops them along with it.
func (r *UserRepo) Merge(ctx context.Context, winnerID, loserID string) error {
	for _, fk := range mergeForeignKeyTables {
		query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, fk.table, fk.column, fk.column)
		if _, err := r.q.Exec(ctx, query, winnerID, loserID); err != nil {
			return fmt.Errorf("postgres: merge re-target %s: %w", fk.table, err)
		}
	}
	_, err := r.q.Exec(ctx, `DELETE FROM app_user WHERE id = $1`, loserID)
	return err
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.DisplayName, &u.LastLoginAt, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
