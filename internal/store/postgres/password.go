package postgres

import (
	"context"
	"time"

	"github.com/lightbasehq/corehub/internal/domain"
)

type PasswordRepo struct{ q Queryer }

func NewPasswordRepo(q Queryer) *PasswordRepo { return &PasswordRepo{q: q} }

const passwordLoginColumns = `id, user_id, tenant_id, email, password_hash, verified_at, requires_rotation, otp_enabled_at, otp_secret, created_at, updated_at`

func (r *PasswordRepo) GetByEmail(ctx context.Context, tenantID, email string) (domain.PasswordLogin, error) {
	query := `SELECT ` + passwordLoginColumns + ` FROM password_login WHERE tenant_id = $1 AND email = $2`
	pl, err := scanPasswordLogin(r.q.QueryRow(ctx, query, tenantID, email))
	if err != nil {
		return domain.PasswordLogin{}, mapNoRows(err)
	}
	return pl, nil
}

func (r *PasswordRepo) GetByID(ctx context.Context, id string) (domain.PasswordLogin, error) {
	query := `SELECT ` + passwordLoginColumns + ` FROM password_login WHERE id = $1`
	pl, err := scanPasswordLogin(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return domain.PasswordLogin{}, mapNoRows(err)
	}
	return pl, nil
}

func (r *PasswordRepo) GetByUserID(ctx context.Context, tenantID, userID string) (domain.PasswordLogin, error) {
	query := `SELECT ` + passwordLoginColumns + ` FROM password_login WHERE tenant_id = $1 AND user_id = $2`
	pl, err := scanPasswordLogin(r.q.QueryRow(ctx, query, tenantID, userID))
	if err != nil {
		return domain.PasswordLogin{}, mapNoRows(err)
	}
	return pl, nil
}

func (r *PasswordRepo) ListByUserID(ctx context.Context, userID string) ([]domain.PasswordLogin, error) {
	query := `SELECT ` + passwordLoginColumns + ` FROM password_login WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PasswordLogin
	for rows.Next() {
		pl, err := scanPasswordLogin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (r *PasswordRepo) Create(ctx context.Context, pl domain.PasswordLogin) (domain.PasswordLogin, error) {
	query := `
		INSERT INTO password_login (id, user_id, tenant_id, email, password_hash, verified_at, requires_rotation, otp_enabled_at, otp_secret, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + passwordLoginColumns
	return scanPasswordLogin(r.q.QueryRow(ctx, query, pl.UserID, pl.TenantID, pl.Email, pl.PasswordHash, pl.VerifiedAt, pl.RequiresRotation, pl.OtpEnabledAt, pl.OtpSecret))
}

func (r *PasswordRepo) UpdateHash(ctx context.Context, id, hash string, requiresRotation bool) error {
	const query = `UPDATE password_login SET password_hash = $2, requires_rotation = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, hash, requiresRotation)
	return err
}

func (r *PasswordRepo) SetVerifiedAt(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE password_login SET verified_at = $2, updated_at = NOW() WHERE id = $1 AND verified_at IS NULL`
	_, err := r.q.Exec(ctx, query, id, at)
	return err
}

func (r *PasswordRepo) SetOtpSecret(ctx context.Context, id, secret string, enabledAt time.Time) error {
	const query = `UPDATE password_login SET otp_secret = $2, otp_enabled_at = COALESCE(otp_enabled_at, $3), updated_at = NOW() WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, secret, enabledAt)
	return err
}

func (r *PasswordRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM password_login WHERE id = $1`, id)
	return err
}

func (r *PasswordRepo) CreateReset(ctx context.Context, rst domain.PasswordLoginReset) (domain.PasswordLoginReset, error) {
	const query = `
		INSERT INTO password_login_reset (id, password_login_id, token, expires_at, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, NOW())
		RETURNING id, password_login_id, token, expires_at, consumed_at, created_at
	`
	return scanReset(r.q.QueryRow(ctx, query, rst.PasswordLoginID, rst.Token, rst.ExpiresAt))
}

func (r *PasswordRepo) GetResetByToken(ctx context.Context, token string) (domain.PasswordLoginReset, error) {
	const query = `
		SELECT id, password_login_id, token, expires_at, consumed_at, created_at
		FROM password_login_reset WHERE token = $1
	`
	rst, err := scanReset(r.q.QueryRow(ctx, query, token))
	if err != nil {
		return domain.PasswordLoginReset{}, mapNoRows(err)
	}
	return rst, nil
}

func (r *PasswordRepo) ConsumeReset(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE password_login_reset SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`
	tag, err := r.q.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *PasswordRepo) RecordAttempt(ctx context.Context, a domain.PasswordLoginAttempt) error {
	const query = `
		INSERT INTO password_login_attempt (id, password_login_id, succeeded, created_at)
		VALUES (gen_random_uuid(), $1, $2, NOW())
	`
	_, err := r.q.Exec(ctx, query, a.PasswordLoginID, a.Succeeded)
	return err
}

func (r *PasswordRepo) CountRecentFailures(ctx context.Context, passwordLoginID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM password_login_attempt
		WHERE password_login_id = $1 AND succeeded = false
		AND created_at > NOW() - INTERVAL '5 minutes'
		AND created_at > COALESCE(
			(SELECT MAX(created_at) FROM password_login_attempt WHERE password_login_id = $1 AND succeeded = true),
			'epoch'::timestamptz
		)
	`
	var n int
	err := r.q.QueryRow(ctx, query, passwordLoginID).Scan(&n)
	return n, err
}

func (r *PasswordRepo) ClearAttempts(ctx context.Context, passwordLoginID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM password_login_attempt WHERE password_login_id = $1`, passwordLoginID)
	return err
}

func scanPasswordLogin(row rowScanner) (domain.PasswordLogin, error) {
	var pl domain.PasswordLogin
	err := row.Scan(&pl.ID, &pl.UserID, &pl.TenantID, &pl.Email, &pl.PasswordHash, &pl.VerifiedAt, &pl.RequiresRotation, &pl.OtpEnabledAt, &pl.OtpSecret, &pl.CreatedAt, &pl.UpdatedAt)
	return pl, err
}

func scanReset(row rowScanner) (domain.PasswordLoginReset, error) {
	var r domain.PasswordLoginReset
	err := row.Scan(&r.ID, &r.PasswordLoginID, &r.Token, &r.ExpiresAt, &r.ConsumedAt, &r.CreatedAt)
	return r, err
}
