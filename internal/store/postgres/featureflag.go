package postgres

import (
	"context"

	"github.com/lightbasehq/corehub/internal/domain"
)

type FeatureFlagRepo struct{ q Queryer }

func NewFeatureFlagRepo(q Queryer) *FeatureFlagRepo { return &FeatureFlagRepo{q: q} }

func (r *FeatureFlagRepo) ListForTenant(ctx context.Context, tenantID string) ([]domain.FeatureFlag, error) {
	const query = `
		SELECT id, name, tenant_id, user_id, enabled, created_at, updated_at
		FROM feature_flag WHERE tenant_id = $1
	`
	rows, err := r.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeatureFlag
	for rows.Next() {
		f, err := scanFeatureFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FeatureFlagRepo) Get(ctx context.Context, tenantID, name string, userID *string) (domain.FeatureFlag, error) {
	const query = `
		SELECT id, name, tenant_id, user_id, enabled, created_at, updated_at
		FROM feature_flag
		WHERE tenant_id = $1 AND name = $2 AND ((user_id IS NULL AND $3::text IS NULL) OR user_id = $3)
	`
	f, err := scanFeatureFlag(r.q.QueryRow(ctx, query, tenantID, name, userID))
	if err != nil {
		return domain.FeatureFlag{}, mapNoRows(err)
	}
	return f, nil
}

func (r *FeatureFlagRepo) Set(ctx context.Context, f domain.FeatureFlag) (domain.FeatureFlag, error) {
	const query = `
		INSERT INTO feature_flag (id, name, tenant_id, user_id, enabled, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (tenant_id, name, user_id) DO UPDATE SET enabled = $4, updated_at = NOW()
		RETURNING id, name, tenant_id, user_id, enabled, created_at, updated_at
	`
	return scanFeatureFlag(r.q.QueryRow(ctx, query, f.Name, f.TenantID, f.UserID, f.Enabled))
}

func (r *FeatureFlagRepo) Delete(ctx context.Context, tenantID, name string, userID *string) error {
	const query = `
		DELETE FROM feature_flag
		WHERE tenant_id = $1 AND name = $2 AND ((user_id IS NULL AND $3::text IS NULL) OR user_id = $3)
	`
	_, err := r.q.Exec(ctx, query, tenantID, name, userID)
	return err
}

func scanFeatureFlag(row rowScanner) (domain.FeatureFlag, error) {
	var f domain.FeatureFlag
	err := row.Scan(&f.ID, &f.Name, &f.TenantID, &f.UserID, &f.Enabled, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}
