package domain

import (
	"context"
	"time"
)

// KeycloakLogin binds a user in a tenant to a Keycloak subject (spec.md
// §4.5.4). The federated provider never stores the upstream access or
// refresh token — only the subject identifier and, optionally, the last
// claims snapshot used for profile sync.
type KeycloakLogin struct {
	ID        string
	UserID    string
	TenantID  string
	Subject   string
	Claims    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// KeycloakOAuthState is a short-lived, single-use state/nonce pair
// bound to an authorization-code flow in progress.
type KeycloakOAuthState struct {
	State       string
	Nonce       string
	RedirectURI string
	TenantID    string
	IssuedAt    time.Time
	ConsumedAt  *time.Time
}

type KeycloakLoginRepository interface {
	GetBySubject(ctx context.Context, tenantID, subject string) (KeycloakLogin, error)
	GetByUserID(ctx context.Context, tenantID, userID string) (KeycloakLogin, error)
	Create(ctx context.Context, k KeycloakLogin) (KeycloakLogin, error)
	UpdateSubject(ctx context.Context, id, subject string) error
	UpdateClaims(ctx context.Context, id string, claims map[string]any) error
	Delete(ctx context.Context, id string) error

	CreateState(ctx context.Context, s KeycloakOAuthState) (KeycloakOAuthState, error)
	ConsumeState(ctx context.Context, state string, at time.Time) (KeycloakOAuthState, error)
}
