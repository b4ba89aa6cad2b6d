package postgres

import (
	"context"
	"encoding/json"

	"github.com/lightbasehq/corehub/internal/domain"
)

type TenantRepo struct{ q Queryer }

func NewTenantRepo(q Queryer) *TenantRepo { return &TenantRepo{q: q} }

func (r *TenantRepo) List(ctx context.Context) ([]domain.Tenant, error) {
	const query = `
		SELECT id, name, data, url_config, disabled, created_at, updated_at
		FROM tenant ORDER BY name
	`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TenantRepo) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	const query = `
		SELECT id, name, data, url_config, disabled, created_at, updated_at
		FROM tenant WHERE name = $1
	`
	row := r.q.QueryRow(ctx, query, name)
	t, err := scanTenant(row)
	if err != nil {
		return domain.Tenant{}, mapNoRows(err)
	}
	return t, nil
}

func (r *TenantRepo) Upsert(ctx context.Context, t domain.Tenant) error {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return err
	}
	urlConfig, err := json.Marshal(t.URLConfig)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO tenant (id, name, data, url_config, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			data = $3, url_config = $4, disabled = $5, updated_at = NOW()
	`
	_, err = r.q.Exec(ctx, query, t.ID, t.Name, data, urlConfig, t.Disabled)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (domain.Tenant, error) {
	var t domain.Tenant
	var data, urlConfig []byte
	if err := row.Scan(&t.ID, &t.Name, &data, &urlConfig, &t.Disabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Tenant{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &t.Data); err != nil {
			return domain.Tenant{}, err
		}
	}
	if len(urlConfig) > 0 {
		if err := json.Unmarshal(urlConfig, &t.URLConfig); err != nil {
			return domain.Tenant{}, err
		}
	}
	return t, nil
}
