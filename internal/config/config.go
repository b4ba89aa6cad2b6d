// Package config loads and validates the process configuration: the YAML
// tenant document and the environment variables the core consumes. Both
// are read once at startup and treated as immutable for the life of the
// process (spec.md §5 — "the only shared mutable runtime state is the
// static tenant configuration, the feature-flag cache, and the tenant
// cache").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment is the deployment environment marker consumed throughout
// the core (tenant url-config matching, SAML endpoint selection,
// x-lpc-tenant-origin override eligibility).
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvAcceptance  Environment = "acceptance"
	EnvDevelopment Environment = "development"
)

func (e Environment) IsDevOrAcceptance() bool {
	return e == EnvDevelopment || e == EnvAcceptance
}

// Config is the root process configuration.
type Config struct {
	App struct {
		Env Environment `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		DSN string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns int    `yaml:"max_open_conns"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
			ConnMaxLife  string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // "memory" | "redis"
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Session struct {
		// AccessTTL/RefreshTTL are parsed from Go duration strings
		// ("15m", "720h") — both configurable per deployment per
		// spec.md §4.3.
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"session"`

	Auth struct {
		ReduceErrorInfo          bool `yaml:"reduce_error_info"`
		BlockAfterMaxAttempts    bool `yaml:"block_after_max_attempts"`
		RemoveCurrentSessionOnly bool `yaml:"remove_current_session_only"`
		ForcePasswordRotation    bool `yaml:"force_password_rotation"`
		RequireDeviceInfo        bool `yaml:"require_device_info"`
		MaxMobileSessions        int  `yaml:"max_mobile_sessions"`
	} `yaml:"auth"`

	Rate struct {
		Enabled            bool   `yaml:"enabled"`
		BucketSize         int64  `yaml:"bucket_size"`
		WindowSeconds      int64  `yaml:"window_seconds"`
		BlockDuration      string `yaml:"block_duration"`
		SSRIPVerifyEnabled bool   `yaml:"ssr_ip_verify_enabled"`
	} `yaml:"rate"`

	FeatureFlags struct {
		Declared  []string `yaml:"declared"`
		CacheTTL  string   `yaml:"cache_ttl"`
	} `yaml:"feature_flags"`

	Permissions struct {
		Declared       []string            `yaml:"declared"`
		MandatoryRoles []MandatoryRoleSpec `yaml:"mandatory_roles"`
	} `yaml:"permissions"`

	Management struct {
		Enabled       bool   `yaml:"enabled"`
		MagicLinkTTL  string `yaml:"magic_link_ttl"`
		AllowedUserID string `yaml:"allowed_user_id"`
	} `yaml:"management"`

	Digid struct {
		Issuer             string `yaml:"issuer"`
		AcsURL             string `yaml:"acs_url"`
		ArtifactResolveURL string `yaml:"artifact_resolve_url"`
		SPKeyFile          string `yaml:"sp_key_file"`
		SPCertFile         string `yaml:"sp_cert_file"`
		IDPCertFile        string `yaml:"idp_cert_file"`
		MTLSCertFile       string `yaml:"mtls_cert_file"`
		MTLSKeyFile        string `yaml:"mtls_key_file"`
		CAFile             string `yaml:"ca_file"`
		HTTPTimeout        string `yaml:"http_timeout"`
	} `yaml:"digid"`

	Keycloak struct {
		Issuer                string `yaml:"issuer"`
		ClientID              string `yaml:"client_id"`
		ClientSecret          string `yaml:"client_secret"`
		RedirectURI           string `yaml:"redirect_uri"`
		ImplicitlyCreateUsers bool   `yaml:"implicitly_create_users"`
		SingleTenant          bool   `yaml:"single_tenant"`
		HTTPTimeout           string `yaml:"http_timeout"`
	} `yaml:"keycloak"`

	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// MandatoryRoleSpec declares a mandatory role and its permission set, per
// spec.md §4.2 — synchronized at every startup.
type MandatoryRoleSpec struct {
	Identifier  string   `yaml:"identifier"`
	Tenant      string   `yaml:"tenant,omitempty"` // empty = global
	Permissions []string `yaml:"permissions"`
}

// Load reads and parses the YAML config document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the subset of invariants the core itself depends on.
// Invariants specific to a single component (tenant url-config coverage,
// mandatory-role uniqueness) are validated by that component at startup
// instead, since they need the parsed document, not just the raw YAML.
func (c *Config) Validate() error {
	switch c.App.Env {
	case EnvProduction, EnvAcceptance, EnvDevelopment:
	default:
		return fmt.Errorf("config: app.env must be one of production|acceptance|development, got %q", c.App.Env)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required")
	}
	if c.Session.AccessTTL == "" {
		c.Session.AccessTTL = "15m"
	}
	if c.Session.RefreshTTL == "" {
		c.Session.RefreshTTL = "720h"
	}
	return nil
}

// AccessTTL parses Session.AccessTTL.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.AccessTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses Session.RefreshTTL.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.RefreshTTL)
	if err != nil {
		return 720 * time.Hour
	}
	return d
}

// FeatureFlagCacheTTL parses FeatureFlags.CacheTTL, defaulting to the 5s
// TTL spec.md §4.6 mandates.
func (c *Config) FeatureFlagCacheTTL() time.Duration {
	if c.FeatureFlags.CacheTTL == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(c.FeatureFlags.CacheTTL)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// RateBlockDuration parses Rate.BlockDuration, defaulting to the 10-minute
// block spec.md §4.7 mandates.
func (c *Config) RateBlockDuration() time.Duration {
	if c.Rate.BlockDuration == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(c.Rate.BlockDuration)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// DigidHTTPTimeout parses Digid.HTTPTimeout, defaulting to 10s for the
// artifact-resolution back-channel call.
func (c *Config) DigidHTTPTimeout() time.Duration {
	if c.Digid.HTTPTimeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(c.Digid.HTTPTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// KeycloakHTTPTimeout parses Keycloak.HTTPTimeout, defaulting to 10s for
// the token/userinfo calls.
func (c *Config) KeycloakHTTPTimeout() time.Duration {
	if c.Keycloak.HTTPTimeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(c.Keycloak.HTTPTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
