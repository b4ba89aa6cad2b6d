package postgres

import (
	"context"
	"time"

	"github.com/lightbasehq/corehub/internal/domain"
)

type TotpRepo struct{ q Queryer }

func NewTotpRepo(q Queryer) *TotpRepo { return &TotpRepo{q: q} }

func (r *TotpRepo) GetByUserID(ctx context.Context, userID string) (domain.TotpSettings, error) {
	const query = `
		SELECT id, user_id, secret, confirmed, recovery_codes, created_at, confirmed_at
		FROM totp_settings WHERE user_id = $1
	`
	t, err := scanTotp(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		return domain.TotpSettings{}, mapNoRows(err)
	}
	return t, nil
}

func (r *TotpRepo) Create(ctx context.Context, t domain.TotpSettings) (domain.TotpSettings, error) {
	const query = `
		INSERT INTO totp_settings (id, user_id, secret, confirmed, recovery_codes, created_at)
		VALUES (gen_random_uuid(), $1, $2, false, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET secret = $2, confirmed = false, recovery_codes = $3, confirmed_at = NULL
		RETURNING id, user_id, secret, confirmed, recovery_codes, created_at, confirmed_at
	`
	return scanTotp(r.q.QueryRow(ctx, query, t.UserID, t.Secret, t.RecoveryCodes))
}

func (r *TotpRepo) Confirm(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE totp_settings SET confirmed = true, confirmed_at = $2 WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, at)
	return err
}

func (r *TotpRepo) ReplaceRecoveryCodes(ctx context.Context, id string, codes []string) error {
	const query = `UPDATE totp_settings SET recovery_codes = $2 WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, codes)
	return err
}

// ConsumeRecoveryCode atomically removes code from a user's recovery
// pool and reports whether it was present — the single round-trip a
// code can be spent exactly once (spec.md §4.5.5).
func (r *TotpRepo) ConsumeRecoveryCode(ctx context.Context, userID, code string) (bool, error) {
	const query = `
		UPDATE totp_settings
		SET recovery_codes = array_remove(recovery_codes, $2)
		WHERE user_id = $1 AND $2 = ANY(recovery_codes)
	`
	tag, err := r.q.Exec(ctx, query, userID, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TotpRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM totp_settings WHERE user_id = $1`, userID)
	return err
}

func scanTotp(row rowScanner) (domain.TotpSettings, error) {
	var t domain.TotpSettings
	err := row.Scan(&t.ID, &t.UserID, &t.Secret, &t.Confirmed, &t.RecoveryCodes, &t.CreatedAt, &t.ConfirmedAt)
	return t, err
}
