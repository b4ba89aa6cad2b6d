package domain

import (
	"context"
	"time"
)

// FeatureFlag is a dynamic override of a config-declared flag, scoped to
// a tenant and optionally a single user (spec.md §4.6). Absence of a row
// means the flag resolves to its config-declared default.
type FeatureFlag struct {
	ID        string
	Name      string
	TenantID  string
	UserID    *string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FeatureFlagRepository interface {
	ListForTenant(ctx context.Context, tenantID string) ([]FeatureFlag, error)
	Get(ctx context.Context, tenantID, name string, userID *string) (FeatureFlag, error)
	Set(ctx context.Context, f FeatureFlag) (FeatureFlag, error)
	Delete(ctx context.Context, tenantID, name string, userID *string) error
}
