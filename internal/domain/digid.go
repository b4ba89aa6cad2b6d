package domain

import (
	"context"
	"time"
)

// DigidLogin binds a user in a tenant to a DigiD BSN (spec.md §4.5.3).
// Identifier holds the BSN itself, stored exactly as the artifact
// resolution returned it.
type DigidLogin struct {
	ID         string
	UserID     string
	TenantID   string
	Identifier string
	CreatedAt  time.Time
}

// DigidArtifact is a single-use SAML artifact pending resolution against
// the DigiD artifact-resolution endpoint.
type DigidArtifact struct {
	Artifact    string
	RelayState  string
	IssuedAt    time.Time
	ConsumedAt  *time.Time
}

type DigidLoginRepository interface {
	GetByIdentifier(ctx context.Context, tenantID, identifier string) (DigidLogin, error)
	Create(ctx context.Context, d DigidLogin) (DigidLogin, error)
	Delete(ctx context.Context, id string) error

	CreateArtifact(ctx context.Context, a DigidArtifact) (DigidArtifact, error)
	ConsumeArtifact(ctx context.Context, artifact string, at time.Time) (DigidArtifact, error)
}
