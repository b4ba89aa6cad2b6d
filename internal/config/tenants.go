package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TenantsDocument is the raw shape of the static tenant configuration
// file: tenants: { <name>: { data, urlConfig: { <publicUrl>: {...} } } }
// (spec.md §4.1). Validation into the process's effective, indexed view
// happens in package tenant, since it needs the deployment Environment
// to decide which urlConfig entries survive.
type TenantsDocument struct {
	Tenants map[string]TenantSpec `yaml:"tenants"`
}

// TenantSpec is one entry of the raw tenant document.
type TenantSpec struct {
	Data      map[string]any             `yaml:"data"`
	URLConfig map[string]URLConfigEntry `yaml:"urlConfig"`
}

// URLConfigEntry is keyed by publicUrl in the raw document.
type URLConfigEntry struct {
	Environment Environment `yaml:"environment"`
	APIUrl      string      `yaml:"apiUrl"`
}

// LoadTenantsDocument reads and parses the tenant document at path.
func LoadTenantsDocument(path string) (*TenantsDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read tenants document %s: %w", path, err)
	}
	var doc TenantsDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse tenants document %s: %w", path, err)
	}
	return &doc, nil
}
