package domain

import "context"

// Device is the optional device-info record a session can be bound to
// (spec.md §4.3 — "require_device_info" / mobile session cap). Identity
// is the client-supplied device identifier; Platform/AppVersion are
// informational only.
type Device struct {
	ID                string
	UserID            string
	Identity          string
	Platform          string
	AppVersion        string
	NotificationToken *string
}

type DeviceRepository interface {
	GetByIdentity(ctx context.Context, userID, identity string) (Device, error)
	GetByID(ctx context.Context, id string) (Device, error)
	Upsert(ctx context.Context, d Device) (Device, error)
	// CountMobileSessions counts active sessions bound to a mobile
	// device for userID, the figure internal/authproviders' Tail checks
	// against Auth.MaxMobileSessions before admitting a new one.
	CountMobileSessions(ctx context.Context, userID string) (int, error)
	SetNotificationToken(ctx context.Context, id, token string) error
}
