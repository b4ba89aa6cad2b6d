// Package featureflag implements the declared-flag catalog sync and
// per-tenant resolution on top of a short-TTL pull-through cache
// (spec.md §4.6).
package featureflag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/cache"
	"github.com/lightbasehq/corehub/internal/domain"
)

// ReservedPrefix marks internal flags that are always included
// regardless of the declared catalog.
const ReservedPrefix = "__FEATURE_LPC_"

// ExampleFlag seeds an empty declared list so Sync never runs against a
// degenerate, entirely-empty catalog.
const ExampleFlag = ReservedPrefix + "EXAMPLE_FLAG"

const globalScope = ""

// Engine mediates flag sync and resolution.
type Engine struct {
	repo    domain.FeatureFlagRepository
	cache   cache.Client
	ttl     time.Duration
	declared map[string]bool
}

func New(repo domain.FeatureFlagRepository, c cache.Client, declared []string, ttl time.Duration) *Engine {
	set := make(map[string]bool, len(declared)+1)
	for _, n := range declared {
		set[n] = true
	}
	set[ExampleFlag] = true
	return &Engine{repo: repo, cache: c, ttl: ttl, declared: set}
}

func isReserved(name string) bool { return strings.HasPrefix(name, ReservedPrefix) }

// Sync removes flags whose name is no longer declared and leaves
// declared-but-missing names to default-resolve to false; storage rows
// only exist for names an operator has actually overridden, so there is
// nothing to "insert" for a freshly declared name until Set is called.
// Reserved internal names are exempt from removal.
func (e *Engine) Sync(ctx context.Context, tenantIDs []string) error {
	for _, tenantID := range append(tenantIDs, globalScope) {
		rows, err := e.repo.ListForTenant(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("featureflag: sync list %q: %w", tenantID, err)
		}
		for _, r := range rows {
			if isReserved(r.Name) || e.declared[r.Name] {
				continue
			}
			if err := e.repo.Delete(ctx, tenantID, r.Name, r.UserID); err != nil {
				return fmt.Errorf("featureflag: sync delete %q/%q: %w", tenantID, r.Name, err)
			}
		}
	}
	return nil
}

// cacheKey covers every declared flag for tenantID in one entry, so a
// single fetch primes the whole resolved set (spec.md §4.6's "priming
// strategy on empty").
func cacheKey(tenantID string) string { return "featureflag:" + tenantID }

type resolvedSet map[string]bool

func (e *Engine) loadTenant(ctx context.Context, tenantID string) (resolvedSet, error) {
	if raw, err := e.cache.Get(ctx, cacheKey(tenantID)); err == nil {
		var set resolvedSet
		if err := json.Unmarshal(raw, &set); err == nil {
			return set, nil
		}
	}

	global, err := e.repo.ListForTenant(ctx, globalScope)
	if err != nil {
		return nil, fmt.Errorf("featureflag: load global: %w", err)
	}
	tenantRows, err := e.repo.ListForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("featureflag: load tenant %q: %w", tenantID, err)
	}

	set := make(resolvedSet, len(e.declared))
	for name := range e.declared {
		set[name] = false
	}
	for _, r := range global {
		if e.declared[r.Name] {
			set[r.Name] = r.Enabled
		}
	}
	for _, r := range tenantRows {
		if e.declared[r.Name] {
			set[r.Name] = r.Enabled
		}
	}

	if raw, err := json.Marshal(set); err == nil {
		_ = e.cache.Set(ctx, cacheKey(tenantID), raw, e.ttl)
	}
	return set, nil
}

// ResolveCurrentSet returns every declared flag's resolved value for
// tenantID: tenantValues[tenant] ?? globalValue, defaulting to false for
// anything never stored.
func (e *Engine) ResolveCurrentSet(ctx context.Context, tenantID string) (map[string]bool, error) {
	set, err := e.loadTenant(ctx, tenantID)
	if err != nil {
		return nil, apperr.Server("server.internal.featureFlag.resolveCurrentSet", err)
	}
	return set, nil
}

// ResolveSingle ("getDynamic") resolves one identifier; an undeclared
// name is a server error, not a client one — callers should only ever
// ask about names their own code declares.
func (e *Engine) ResolveSingle(ctx context.Context, tenantID, name string) (bool, error) {
	if !e.declared[name] {
		return false, apperr.Server("server.internal.featureFlag.resolveSingle.undeclared", fmt.Errorf("flag %q is not declared", name))
	}
	set, err := e.loadTenant(ctx, tenantID)
	if err != nil {
		return false, apperr.Server("server.internal.featureFlag.resolveSingle", err)
	}
	return set[name], nil
}

// SetDynamic updates the global and/or per-tenant value and clears the
// cache for every scope touched.
func (e *Engine) SetDynamic(ctx context.Context, name string, global *bool, perTenant map[string]bool) error {
	if !e.declared[name] && !isReserved(name) {
		return apperr.Validation("authFeatureFlag.setDynamic.undeclared")
	}
	if global != nil {
		if _, err := e.repo.Set(ctx, domain.FeatureFlag{Name: name, TenantID: globalScope, Enabled: *global}); err != nil {
			return apperr.Server("server.internal.featureFlag.setDynamic", err)
		}
		_ = e.cache.Delete(ctx, cacheKey(globalScope))
	}
	for tenantID, enabled := range perTenant {
		if _, err := e.repo.Set(ctx, domain.FeatureFlag{Name: name, TenantID: tenantID, Enabled: enabled}); err != nil {
			return apperr.Server("server.internal.featureFlag.setDynamic", err)
		}
		_ = e.cache.Delete(ctx, cacheKey(tenantID))
	}
	return nil
}
