// Package tenant resolves the active tenant for a request and keeps the
// static tenant configuration indexed for fast by-host/by-origin lookup.
package tenant

import (
	"fmt"
	"strings"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/config"
	"github.com/lightbasehq/corehub/internal/domain"
)

// Resolved is what a successful resolution yields: the tenant plus the
// specific publicUrl/apiUrl pair the request matched.
type Resolved struct {
	Tenant    domain.Tenant
	PublicURL string
	APIUrl    string
}

// Resolver holds the validated, indexed view of the tenant document. It
// is built once at startup (see Build) and is safe for concurrent reads
// thereafter — the only mutation path is a full rebuild.
type Resolver struct {
	env config.Environment

	tenants map[string]domain.Tenant // by name

	byPublicURL map[string]tenantURLMatch
	byAPIUrl    map[string]tenantURLMatch

	hasUniqueAPIUrls bool
}

type tenantURLMatch struct {
	tenant domain.Tenant
	url    domain.TenantURLConfig
}

// Build validates doc against env and constructs the indexed Resolver.
// It implements spec.md §4.1's startup rules: drop urlConfig entries
// whose environment doesn't match; disable tenants left with none;
// fail if fewer than one tenant remains enabled.
func Build(env config.Environment, doc *config.TenantsDocument) (*Resolver, error) {
	r := &Resolver{
		env:         env,
		tenants:     make(map[string]domain.Tenant),
		byPublicURL: make(map[string]tenantURLMatch),
		byAPIUrl:    make(map[string]tenantURLMatch),
	}

	enabledCount := 0
	apiURLCounts := make(map[string]int)

	for name, spec := range doc.Tenants {
		t := domain.Tenant{
			ID:        name,
			Name:      name,
			Data:      spec.Data,
			URLConfig: make(map[string]domain.TenantURLConfig),
		}
		for publicURL, entry := range spec.URLConfig {
			if string(entry.Environment) != string(env) {
				continue
			}
			t.URLConfig[publicURL] = domain.TenantURLConfig{
				Environment: string(entry.Environment),
				APIUrl:      entry.APIUrl,
			}
		}
		t.Disabled = len(t.URLConfig) == 0
		r.tenants[name] = t

		if t.Disabled {
			continue
		}
		enabledCount++
		for publicURL, cfg := range t.URLConfig {
			match := tenantURLMatch{tenant: t, url: cfg}
			r.byPublicURL[publicURL] = match
			r.byAPIUrl[cfg.APIUrl] = match
			apiURLCounts[cfg.APIUrl]++
		}
	}

	if enabledCount < 1 {
		return nil, fmt.Errorf("tenant: no enabled tenant remains for environment %q", env)
	}

	r.hasUniqueAPIUrls = true
	for _, n := range apiURLCounts {
		if n != 1 {
			r.hasUniqueAPIUrls = false
			break
		}
	}

	return r, nil
}

// RequestHeaders is the subset of the inbound request the resolver needs.
type RequestHeaders struct {
	Host               string
	Origin             string
	XLpcTenantOrigin   string
}

// ResolveFromRequest implements spec.md §4.1's 5-step algorithm.
func (r *Resolver) ResolveFromRequest(h RequestHeaders) (*Resolved, error) {
	host := strings.TrimSpace(h.Host)

	if r.env.IsDevOrAcceptance() && h.XLpcTenantOrigin != "" {
		if m, ok := r.byPublicURL[h.XLpcTenantOrigin]; ok {
			return &Resolved{Tenant: m.tenant, PublicURL: h.XLpcTenantOrigin, APIUrl: host}, nil
		}
		return nil, invalidTenantErr()
	}

	if host == "" {
		return nil, invalidTenantErr()
	}

	if r.hasUniqueAPIUrls {
		if m, ok := r.byAPIUrl[host]; ok {
			publicURL := h.Origin
			if publicURL == "" {
				for u, cfg := range m.tenant.URLConfig {
					if cfg.APIUrl == host {
						publicURL = u
						break
					}
				}
			}
			return &Resolved{Tenant: m.tenant, PublicURL: publicURL, APIUrl: host}, nil
		}
		return nil, invalidTenantErr()
	}

	originKey := h.Origin
	if h.XLpcTenantOrigin != "" {
		originKey = h.XLpcTenantOrigin
	}
	if originKey == "" {
		return nil, invalidTenantErr()
	}
	m, ok := r.byPublicURL[originKey]
	if !ok {
		return nil, invalidTenantErr()
	}
	return &Resolved{Tenant: m.tenant, PublicURL: originKey, APIUrl: m.url.APIUrl}, nil
}

// ByName returns the indexed (possibly disabled) tenant by name,
// for background/non-request contexts.
func (r *Resolver) ByName(name string) (domain.Tenant, bool) {
	t, ok := r.tenants[name]
	return t, ok
}

// All returns every tenant, enabled or not, for admin listing.
func (r *Resolver) All() []domain.Tenant {
	out := make([]domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out
}

// HasUniqueAPIUrls exposes the derived property for diagnostics/tests.
func (r *Resolver) HasUniqueAPIUrls() bool { return r.hasUniqueAPIUrls }

func invalidTenantErr() error {
	return apperr.Validation("multitenant.require.invalidTenant")
}
