// Package mgmtstore is the Postgres-backed implementation of
// management.Store: outstanding magic-link grants and the transient
// users they provision. It lives outside internal/store/postgres so
// that package (which internal/permission imports for AdvisoryLock and
// NewPermissionRepo) doesn't pull in internal/management, which in turn
// depends on internal/user -> internal/permission, an import cycle.
package mgmtstore

import (
	"context"
	"time"

	"github.com/lightbasehq/corehub/internal/management"
	"github.com/lightbasehq/corehub/internal/store/postgres"
)

// ManagementRepo is the Postgres-backed implementation of
// management.Store: outstanding magic-link grants and the transient
// users they provision.
type ManagementRepo struct{ q postgres.Queryer }

func NewManagementRepo(q postgres.Queryer) *ManagementRepo { return &ManagementRepo{q: q} }

func (r *ManagementRepo) CreateLink(ctx context.Context, l management.Link) (management.Link, error) {
	const query = `
		INSERT INTO management_link (token, user_id, thread_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING token, user_id, thread_id, expires_at, consumed_at
	`
	var out management.Link
	err := r.q.QueryRow(ctx, query, l.Token, l.UserID, l.ThreadID, l.ExpiresAt).Scan(
		&out.Token, &out.UserID, &out.ThreadID, &out.ExpiresAt, &out.ConsumedAt)
	return out, err
}

func (r *ManagementRepo) GetLink(ctx context.Context, token string) (management.Link, error) {
	const query = `SELECT token, user_id, thread_id, expires_at, consumed_at FROM management_link WHERE token = $1`
	var out management.Link
	err := r.q.QueryRow(ctx, query, token).Scan(&out.Token, &out.UserID, &out.ThreadID, &out.ExpiresAt, &out.ConsumedAt)
	if err != nil {
		return management.Link{}, postgres.MapNoRows(err)
	}
	return out, nil
}

func (r *ManagementRepo) ConsumeLink(ctx context.Context, token string, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE management_link SET consumed_at = $2 WHERE token = $1`, token, at)
	return err
}

func (r *ManagementRepo) RecordTransientUser(ctx context.Context, userID, threadID string) error {
	const query = `
		INSERT INTO management_transient_user (user_id, thread_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET thread_id = $2
	`
	_, err := r.q.Exec(ctx, query, userID, threadID)
	return err
}

func (r *ManagementRepo) ListExpiredTransientUsers(ctx context.Context, olderThan time.Time) ([]management.TransientUser, error) {
	const query = `SELECT user_id, thread_id FROM management_transient_user WHERE created_at < $1`
	rows, err := r.q.Query(ctx, query, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []management.TransientUser
	for rows.Next() {
		var t management.TransientUser
		if err := rows.Scan(&t.UserID, &t.ThreadID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ManagementRepo) DeleteTransientUser(ctx context.Context, userID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM management_transient_user WHERE user_id = $1`, userID)
	return err
}
