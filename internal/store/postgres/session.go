package postgres

import (
	"context"
	"time"

	"github.com/lightbasehq/corehub/internal/domain"
)

type SessionRepo struct{ q Queryer }

func NewSessionRepo(q Queryer) *SessionRepo { return &SessionRepo{q: q} }

func (r *SessionRepo) Create(ctx context.Context, s domain.Session) (domain.Session, error) {
	const query = `
		INSERT INTO session (
			id, user_id, tenant_id, type, login_type, two_step, device_id, impersonator_user_id,
			current_token_id, checksum, created_at, updated_at, expires_at
		) VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), $10)
		RETURNING id, user_id, tenant_id, type, login_type, two_step, device_id, impersonator_user_id,
			current_token_id, checksum, revoked_at, created_at, updated_at, expires_at
	`
	return scanSession(r.q.QueryRow(ctx, query,
		s.UserID, s.TenantID, s.Type, s.LoginType, s.TwoStep, s.DeviceID, s.ImpersonatorUserID,
		s.CurrentTokenID, s.Checksum, s.ExpiresAt))
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `
		SELECT id, user_id, tenant_id, type, login_type, two_step, device_id, impersonator_user_id,
			current_token_id, checksum, revoked_at, created_at, updated_at, expires_at
		FROM session WHERE id = $1
	`
	s, err := scanSession(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Session{}, mapNoRows(err)
	}
	return s, nil
}

func (r *SessionRepo) Update(ctx context.Context, s domain.Session) error {
	const query = `
		UPDATE session SET
			type = $2, current_token_id = $3, checksum = $4, device_id = $5,
			impersonator_user_id = $6, expires_at = $7, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.q.Exec(ctx, query, s.ID, s.Type, s.CurrentTokenID, s.Checksum, s.DeviceID, s.ImpersonatorUserID, s.ExpiresAt)
	return err
}

func (r *SessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE session SET revoked_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE session SET revoked_at = $2, updated_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`
	_, err := r.q.Exec(ctx, query, userID, at)
	return err
}

func (r *SessionRepo) ListActiveForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	const query = `
		SELECT id, user_id, tenant_id, type, login_type, two_step, device_id, impersonator_user_id,
			current_token_id, checksum, revoked_at, created_at, updated_at, expires_at
		FROM session WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepo) AppendToken(ctx context.Context, t domain.SessionToken) (domain.SessionToken, error) {
	const query = `
		INSERT INTO session_token (id, session_id, token_id, created_at)
		VALUES (gen_random_uuid(), $1, $2, NOW())
		RETURNING id, session_id, token_id, used_at, created_at
	`
	return scanSessionToken(r.q.QueryRow(ctx, query, t.SessionID, t.TokenID))
}

func (r *SessionRepo) GetToken(ctx context.Context, sessionID, tokenID string) (domain.SessionToken, error) {
	const query = `
		SELECT id, session_id, token_id, used_at, created_at
		FROM session_token WHERE session_id = $1 AND token_id = $2
	`
	t, err := scanSessionToken(r.q.QueryRow(ctx, query, sessionID, tokenID))
	if err != nil {
		return domain.SessionToken{}, mapNoRows(err)
	}
	return t, nil
}

func (r *SessionRepo) MarkTokenUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE session_token SET used_at = $2 WHERE id = $1`, id, at)
	return err
}

func scanSession(row rowScanner) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TenantID, &s.Type, &s.LoginType, &s.TwoStep, &s.DeviceID, &s.ImpersonatorUserID,
		&s.CurrentTokenID, &s.Checksum, &s.RevokedAt, &s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt)
	return s, err
}

func scanSessionToken(row rowScanner) (domain.SessionToken, error) {
	var t domain.SessionToken
	err := row.Scan(&t.ID, &t.SessionID, &t.TokenID, &t.UsedAt, &t.CreatedAt)
	return t, err
}
