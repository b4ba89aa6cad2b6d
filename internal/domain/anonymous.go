package domain

import (
	"context"
	"time"
)

// AnonymousLogin backs the anonymous provider (spec.md §4.5.2): a
// device-bound identity with no credential of its own, promotable to a
// password/federated login via merge without losing session history.
type AnonymousLogin struct {
	ID        string
	UserID    string
	TenantID  string
	DeviceKey string
	// IsAllowedToLogin gates the login endpoint independently of the
	// backing user's own state: flipping it false retires a token
	// without touching the user it is bound to.
	IsAllowedToLogin bool
	CreatedAt        time.Time
}

type AnonymousLoginRepository interface {
	GetByDeviceKey(ctx context.Context, tenantID, deviceKey string) (AnonymousLogin, error)
	Create(ctx context.Context, a AnonymousLogin) (AnonymousLogin, error)
	Delete(ctx context.Context, id string) error
}
