package config

import (
	"fmt"
	"os"
	"strings"
)

// Secrets are the environment-sourced values the core needs at startup.
// spec.md §6: "the list is enumerated at startup; any missing required
// variable aborts startup with a clear error." The core never defines
// how secrets are loaded from the environment (spec.md §1 Non-goals);
// it only enumerates and validates what it needs.
type Secrets struct {
	// AppKeys signs session tokens in production; in non-production
	// environments a fixed development string is used instead
	// (spec.md §6 — "Token format").
	AppKeys string

	// SSRIPVerificationKey validates the X-SSR-Ip-Verification HMAC
	// header consumed by the rate limiter. Optional.
	SSRIPVerificationKey string

	// IntegrationTokens holds provider-specific secrets (Keycloak
	// client secret, DigiD SAML signing key passphrase, ...) keyed by
	// name. Optional; absence only matters if the corresponding
	// provider is enabled.
	IntegrationTokens map[string]string
}

const devSigningKey = "lightbasehq-corehub-development-signing-key-do-not-use-in-prod"

// requiredVars lists every environment variable the core itself requires
// to be present. APP_KEYS is required only in production, so it is not
// listed here; LoadSecrets checks it separately.
var requiredVars = []string{
	"APP_ENV",
}

// LoadSecrets enumerates and validates the environment variables the core
// consumes. It aborts with a descriptive error if a required variable is
// missing, rather than silently falling back.
func LoadSecrets(env Environment) (*Secrets, error) {
	var missing []string
	for _, name := range requiredVars {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	s := &Secrets{IntegrationTokens: map[string]string{}}

	appKeys := strings.TrimSpace(os.Getenv("APP_KEYS"))
	if env == EnvProduction {
		if appKeys == "" {
			return nil, fmt.Errorf("config: APP_KEYS is required in production")
		}
		s.AppKeys = appKeys
	} else if appKeys != "" {
		s.AppKeys = appKeys
	} else {
		s.AppKeys = devSigningKey
	}

	s.SSRIPVerificationKey = strings.TrimSpace(os.Getenv("SSR_IP_VERIFICATION_KEY"))

	for _, name := range []string{"KEYCLOAK_CLIENT_SECRET", "DIGID_SP_KEY_PASSPHRASE", "MANAGEMENT_DIRECTORY_TOKEN"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			s.IntegrationTokens[name] = v
		}
	}

	return s, nil
}
