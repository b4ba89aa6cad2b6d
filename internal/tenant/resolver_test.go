package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/config"
)

func docWithTwoTenants() *config.TenantsDocument {
	return &config.TenantsDocument{
		Tenants: map[string]config.TenantSpec{
			"acme": {
				URLConfig: map[string]config.URLConfigEntry{
					"https://acme.example": {Environment: config.EnvDevelopment, APIUrl: "api.acme.example"},
				},
			},
			"globex": {
				URLConfig: map[string]config.URLConfigEntry{
					"https://globex.example": {Environment: config.EnvDevelopment, APIUrl: "api.globex.example"},
				},
			},
		},
	}
}

func TestBuild_DropsEntriesForOtherEnvironments(t *testing.T) {
	doc := &config.TenantsDocument{
		Tenants: map[string]config.TenantSpec{
			"acme": {
				URLConfig: map[string]config.URLConfigEntry{
					"https://acme.example": {Environment: config.EnvProduction, APIUrl: "api.acme.example"},
				},
			},
		},
	}
	_, err := Build(config.EnvDevelopment, doc)
	require.Error(t, err, "no tenant survives once its only urlConfig entry is for another environment")
}

func TestBuild_UniqueAPIUrlsResolveByHost(t *testing.T) {
	r, err := Build(config.EnvDevelopment, docWithTwoTenants())
	require.NoError(t, err)
	assert.True(t, r.HasUniqueAPIUrls())

	resolved, err := r.ResolveFromRequest(RequestHeaders{Host: "api.acme.example"})
	require.NoError(t, err)
	assert.Equal(t, "acme", resolved.Tenant.ID)
}

func TestResolveFromRequest_UnknownHostIsInvalidTenant(t *testing.T) {
	r, err := Build(config.EnvDevelopment, docWithTwoTenants())
	require.NoError(t, err)

	_, err = r.ResolveFromRequest(RequestHeaders{Host: "nope.example"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, "multitenant.require.invalidTenant"))
}

func TestResolveFromRequest_DevXLpcTenantOriginOverride(t *testing.T) {
	r, err := Build(config.EnvDevelopment, docWithTwoTenants())
	require.NoError(t, err)

	resolved, err := r.ResolveFromRequest(RequestHeaders{
		Host:             "localhost:3000",
		XLpcTenantOrigin: "https://globex.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "globex", resolved.Tenant.ID)
}

func TestResolveFromRequest_XLpcTenantOriginIgnoredOutsideDevOrAcceptance(t *testing.T) {
	doc := docWithTwoTenants()
	for name, spec := range doc.Tenants {
		for url, entry := range spec.URLConfig {
			entry.Environment = config.EnvProduction
			spec.URLConfig[url] = entry
		}
		doc.Tenants[name] = spec
	}
	r, err := Build(config.EnvProduction, doc)
	require.NoError(t, err)

	_, err = r.ResolveFromRequest(RequestHeaders{
		Host:             "unrelated.example",
		XLpcTenantOrigin: "https://globex.example",
	})
	require.Error(t, err, "production must resolve by host, not the dev-only override header")
}

func TestByName_ReturnsDisabledTenantsToo(t *testing.T) {
	doc := &config.TenantsDocument{
		Tenants: map[string]config.TenantSpec{
			"acme":   docWithTwoTenants().Tenants["acme"],
			"dormant": {URLConfig: map[string]config.URLConfigEntry{}},
		},
	}
	r, err := Build(config.EnvDevelopment, doc)
	require.NoError(t, err)

	dormant, ok := r.ByName("dormant")
	require.True(t, ok)
	assert.True(t, dormant.Disabled)
}
