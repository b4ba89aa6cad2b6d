package postgres

import (
	"context"

	"github.com/lightbasehq/corehub/internal/domain"
)

type AnonymousRepo struct{ q Queryer }

func NewAnonymousRepo(q Queryer) *AnonymousRepo { return &AnonymousRepo{q: q} }

func (r *AnonymousRepo) GetByDeviceKey(ctx context.Context, tenantID, deviceKey string) (domain.AnonymousLogin, error) {
	const query = `
		SELECT id, user_id, tenant_id, device_key, is_allowed_to_login, created_at
		FROM anonymous_login WHERE tenant_id = $1 AND device_key = $2
	`
	var a domain.AnonymousLogin
	err := r.q.QueryRow(ctx, query, tenantID, deviceKey).Scan(&a.ID, &a.UserID, &a.TenantID, &a.DeviceKey, &a.IsAllowedToLogin, &a.CreatedAt)
	if err != nil {
		return domain.AnonymousLogin{}, mapNoRows(err)
	}
	return a, nil
}

func (r *AnonymousRepo) Create(ctx context.Context, a domain.AnonymousLogin) (domain.AnonymousLogin, error) {
	const query = `
		INSERT INTO anonymous_login (id, user_id, tenant_id, device_key, is_allowed_to_login, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW())
		RETURNING id, user_id, tenant_id, device_key, is_allowed_to_login, created_at
	`
	var out domain.AnonymousLogin
	err := r.q.QueryRow(ctx, query, a.UserID, a.TenantID, a.DeviceKey, a.IsAllowedToLogin).Scan(
		&out.ID, &out.UserID, &out.TenantID, &out.DeviceKey, &out.IsAllowedToLogin, &out.CreatedAt)
	return out, err
}

func (r *AnonymousRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM anonymous_login WHERE id = $1`, id)
	return err
}
