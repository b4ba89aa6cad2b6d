package postgres

import (
	"context"
	"time"

	"github.com/lightbasehq/corehub/internal/domain"
)

type DigidRepo struct{ q Queryer }

func NewDigidRepo(q Queryer) *DigidRepo { return &DigidRepo{q: q} }

func (r *DigidRepo) GetByIdentifier(ctx context.Context, tenantID, identifier string) (domain.DigidLogin, error) {
	const query = `
		SELECT id, user_id, tenant_id, identifier, created_at
		FROM digid_login WHERE tenant_id = $1 AND identifier = $2
	`
	var d domain.DigidLogin
	err := r.q.QueryRow(ctx, query, tenantID, identifier).Scan(&d.ID, &d.UserID, &d.TenantID, &d.Identifier, &d.CreatedAt)
	if err != nil {
		return domain.DigidLogin{}, mapNoRows(err)
	}
	return d, nil
}

func (r *DigidRepo) Create(ctx context.Context, d domain.DigidLogin) (domain.DigidLogin, error) {
	const query = `
		INSERT INTO digid_login (id, user_id, tenant_id, identifier, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, NOW())
		RETURNING id, user_id, tenant_id, identifier, created_at
	`
	var out domain.DigidLogin
	err := r.q.QueryRow(ctx, query, d.UserID, d.TenantID, d.Identifier).Scan(&out.ID, &out.UserID, &out.TenantID, &out.Identifier, &out.CreatedAt)
	return out, err
}

func (r *DigidRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM digid_login WHERE id = $1`, id)
	return err
}

func (r *DigidRepo) CreateArtifact(ctx context.Context, a domain.DigidArtifact) (domain.DigidArtifact, error) {
	const query = `
		INSERT INTO digid_artifact (artifact, relay_state, issued_at)
		VALUES ($1, $2, NOW())
		RETURNING artifact, relay_state, issued_at, consumed_at
	`
	var out domain.DigidArtifact
	err := r.q.QueryRow(ctx, query, a.Artifact, a.RelayState).Scan(&out.Artifact, &out.RelayState, &out.IssuedAt, &out.ConsumedAt)
	return out, err
}

func (r *DigidRepo) ConsumeArtifact(ctx context.Context, artifact string, at time.Time) (domain.DigidArtifact, error) {
	const query = `
		UPDATE digid_artifact SET consumed_at = $2
		WHERE artifact = $1 AND consumed_at IS NULL
		RETURNING artifact, relay_state, issued_at, consumed_at
	`
	var out domain.DigidArtifact
	err := r.q.QueryRow(ctx, query, artifact, at).Scan(&out.Artifact, &out.RelayState, &out.IssuedAt, &out.ConsumedAt)
	if err != nil {
		return domain.DigidArtifact{}, mapNoRows(err)
	}
	return out, nil
}
