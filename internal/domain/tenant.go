package domain

import (
	"context"
	"time"
)

// Tenant is the persisted record backing one entry of the static tenant
// document once it has been accepted into storage (spec.md §3, §4.1).
// The document itself is config.TenantsDocument; Tenant is what the
// resolver indexes and what the rest of the core references by ID.
type Tenant struct {
	ID        string
	Name      string
	Data      map[string]any
	URLConfig map[string]TenantURLConfig
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantURLConfig is one urlConfig entry of a Tenant, keyed by publicUrl.
type TenantURLConfig struct {
	Environment string
	APIUrl      string
}

// TenantRepository persists the tenant catalog: tenant.Sync writes the
// static tenant document here and tenant.Cache reads rows back by name.
// The resolver's in-memory indexes (by name, by publicUrl, by apiUrl) are
// built from the document itself by tenant.Build, not from this
// repository, which exposes no lookup-by-url (spec.md §4.1).
type TenantRepository interface {
	List(ctx context.Context) ([]Tenant, error)
	GetByName(ctx context.Context, name string) (Tenant, error)
	Upsert(ctx context.Context, t Tenant) error
}
