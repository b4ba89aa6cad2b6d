package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lightbasehq/corehub/internal/domain"
)

type KeycloakRepo struct{ q Queryer }

func NewKeycloakRepo(q Queryer) *KeycloakRepo { return &KeycloakRepo{q: q} }

func (r *KeycloakRepo) GetBySubject(ctx context.Context, tenantID, subject string) (domain.KeycloakLogin, error) {
	const query = `
		SELECT id, user_id, tenant_id, subject, claims, created_at, updated_at
		FROM keycloak_login WHERE tenant_id = $1 AND subject = $2
	`
	k, err := scanKeycloak(r.q.QueryRow(ctx, query, tenantID, subject))
	if err != nil {
		return domain.KeycloakLogin{}, mapNoRows(err)
	}
	return k, nil
}

func (r *KeycloakRepo) GetByUserID(ctx context.Context, tenantID, userID string) (domain.KeycloakLogin, error) {
	const query = `
		SELECT id, user_id, tenant_id, subject, claims, created_at, updated_at
		FROM keycloak_login WHERE tenant_id = $1 AND user_id = $2
	`
	k, err := scanKeycloak(r.q.QueryRow(ctx, query, tenantID, userID))
	if err != nil {
		return domain.KeycloakLogin{}, mapNoRows(err)
	}
	return k, nil
}

func (r *KeycloakRepo) UpdateSubject(ctx context.Context, id, subject string) error {
	_, err := r.q.Exec(ctx, `UPDATE keycloak_login SET subject = $2, updated_at = NOW() WHERE id = $1`, id, subject)
	return err
}

func (r *KeycloakRepo) Create(ctx context.Context, k domain.KeycloakLogin) (domain.KeycloakLogin, error) {
	claims, err := json.Marshal(k.Claims)
	if err != nil {
		return domain.KeycloakLogin{}, err
	}
	const query = `
		INSERT INTO keycloak_login (id, user_id, tenant_id, subject, claims, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW(), NOW())
		RETURNING id, user_id, tenant_id, subject, claims, created_at, updated_at
	`
	return scanKeycloak(r.q.QueryRow(ctx, query, k.UserID, k.TenantID, k.Subject, claims))
}

func (r *KeycloakRepo) UpdateClaims(ctx context.Context, id string, claims map[string]any) error {
	b, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `UPDATE keycloak_login SET claims = $2, updated_at = NOW() WHERE id = $1`, id, b)
	return err
}

func (r *KeycloakRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM keycloak_login WHERE id = $1`, id)
	return err
}

func (r *KeycloakRepo) CreateState(ctx context.Context, s domain.KeycloakOAuthState) (domain.KeycloakOAuthState, error) {
	const query = `
		INSERT INTO keycloak_oauth_state (state, nonce, redirect_uri, tenant_id, issued_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING state, nonce, redirect_uri, tenant_id, issued_at, consumed_at
	`
	var out domain.KeycloakOAuthState
	err := r.q.QueryRow(ctx, query, s.State, s.Nonce, s.RedirectURI, s.TenantID).Scan(
		&out.State, &out.Nonce, &out.RedirectURI, &out.TenantID, &out.IssuedAt, &out.ConsumedAt)
	return out, err
}

func (r *KeycloakRepo) ConsumeState(ctx context.Context, state string, at time.Time) (domain.KeycloakOAuthState, error) {
	const query = `
		UPDATE keycloak_oauth_state SET consumed_at = $2
		WHERE state = $1 AND consumed_at IS NULL
		RETURNING state, nonce, redirect_uri, tenant_id, issued_at, consumed_at
	`
	var out domain.KeycloakOAuthState
	err := r.q.QueryRow(ctx, query, state, at).Scan(
		&out.State, &out.Nonce, &out.RedirectURI, &out.TenantID, &out.IssuedAt, &out.ConsumedAt)
	if err != nil {
		return domain.KeycloakOAuthState{}, mapNoRows(err)
	}
	return out, nil
}

func scanKeycloak(row rowScanner) (domain.KeycloakLogin, error) {
	var k domain.KeycloakLogin
	var claims []byte
	if err := row.Scan(&k.ID, &k.UserID, &k.TenantID, &k.Subject, &claims, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return domain.KeycloakLogin{}, err
	}
	if len(claims) > 0 {
		if err := json.Unmarshal(claims, &k.Claims); err != nil {
			return domain.KeycloakLogin{}, err
		}
	}
	return k, nil
}
