package postgres

import (
	"context"

	"github.com/lightbasehq/corehub/internal/domain"
)

type DeviceRepo struct{ q Queryer }

func NewDeviceRepo(q Queryer) *DeviceRepo { return &DeviceRepo{q: q} }

func (r *DeviceRepo) GetByIdentity(ctx context.Context, userID, identity string) (domain.Device, error) {
	const query = `
		SELECT id, user_id, identity, platform, app_version, notification_token
		FROM device WHERE user_id = $1 AND identity = $2
	`
	var d domain.Device
	err := r.q.QueryRow(ctx, query, userID, identity).Scan(&d.ID, &d.UserID, &d.Identity, &d.Platform, &d.AppVersion, &d.NotificationToken)
	if err != nil {
		return domain.Device{}, mapNoRows(err)
	}
	return d, nil
}

func (r *DeviceRepo) GetByID(ctx context.Context, id string) (domain.Device, error) {
	const query = `
		SELECT id, user_id, identity, platform, app_version, notification_token
		FROM device WHERE id = $1
	`
	var d domain.Device
	err := r.q.QueryRow(ctx, query, id).Scan(&d.ID, &d.UserID, &d.Identity, &d.Platform, &d.AppVersion, &d.NotificationToken)
	if err != nil {
		return domain.Device{}, mapNoRows(err)
	}
	return d, nil
}

func (r *DeviceRepo) Upsert(ctx context.Context, d domain.Device) (domain.Device, error) {
	const query = `
		INSERT INTO device (id, user_id, identity, platform, app_version)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (user_id, identity) DO UPDATE SET platform = $3, app_version = $4
		RETURNING id, user_id, identity, platform, app_version, notification_token
	`
	var out domain.Device
	err := r.q.QueryRow(ctx, query, d.UserID, d.Identity, d.Platform, d.AppVersion).Scan(
		&out.ID, &out.UserID, &out.Identity, &out.Platform, &out.AppVersion, &out.NotificationToken)
	return out, err
}

func (r *DeviceRepo) CountMobileSessions(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM session s
		JOIN device d ON d.id = s.device_id
		WHERE s.user_id = $1 AND s.revoked_at IS NULL AND s.expires_at > NOW() AND d.platform IN ('apple', 'android')
	`
	var n int
	err := r.q.QueryRow(ctx, query, userID).Scan(&n)
	return n, err
}

func (r *DeviceRepo) SetNotificationToken(ctx context.Context, id, token string) error {
	const query = `UPDATE device SET notification_token = $2 WHERE id = $1`
	_, err := r.q.Exec(ctx, query, id, token)
	return err
}
