package tenant

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lightbasehq/corehub/internal/cache"
	"github.com/lightbasehq/corehub/internal/domain"
	"github.com/lightbasehq/corehub/internal/observability/metrics"
)

// SampleRate is how often (in reads) Cache bypasses the cached entry and
// re-reads the tenant from the underlying store, refreshing the cache,
// the "freshness sampling" strategy of spec.md §4.1.
const SampleRate = 32

// Cache is a pull-through cache over a TenantRepository, fronted by
// internal/cache so Redis can share it across replicas. A singleflight
// group collapses concurrent misses for the same key into one lookup.
type Cache struct {
	client cache.Client
	repo   domain.TenantRepository
	sf     singleflight.Group
	reads  atomic.Uint64
}

func NewCache(client cache.Client, repo domain.TenantRepository) *Cache {
	return &Cache{client: client, repo: repo}
}

// GetByName returns the tenant by name, populating the cache on miss and
// periodically re-validating a hit against storage (sampled, not every
// read, since the tenant document rarely changes mid-process).
func (c *Cache) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	n := c.reads.Add(1)
	if n%SampleRate != 0 {
		if t, ok := c.lookup(ctx, name); ok {
			metrics.TenantCacheHits.WithLabelValues("hit").Inc()
			return t, nil
		}
	}

	v, err, _ := c.sf.Do(name, func() (any, error) {
		t, err := c.repo.GetByName(ctx, name)
		if err != nil {
			return domain.Tenant{}, err
		}
		c.store(ctx, name, t)
		return t, nil
	})
	if err != nil {
		metrics.TenantCacheHits.WithLabelValues("miss").Inc()
		return domain.Tenant{}, err
	}
	metrics.TenantCacheHits.WithLabelValues(labelFor(n)).Inc()
	return v.(domain.Tenant), nil
}

// Invalidate drops a cached entry, used after an admin mutates a tenant.
func (c *Cache) Invalidate(ctx context.Context, name string) {
	_ = c.client.Delete(ctx, cacheKey(name))
}

func (c *Cache) lookup(ctx context.Context, name string) (domain.Tenant, bool) {
	raw, err := c.client.Get(ctx, cacheKey(name))
	if err != nil {
		return domain.Tenant{}, false
	}
	var t domain.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.Tenant{}, false
	}
	return t, true
}

func (c *Cache) store(ctx context.Context, name string, t domain.Tenant) {
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(name), raw, 5*time.Minute)
}

func cacheKey(name string) string { return "tenant:" + name }

func labelFor(n uint64) string {
	if n%SampleRate == 0 {
		return "stale"
	}
	return "miss"
}
