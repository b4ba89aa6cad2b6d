package featureflag

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightbasehq/corehub/internal/cache"
	"github.com/lightbasehq/corehub/internal/domain"
)

type fakeRepo struct {
	mu   sync.Mutex
	rows map[string][]domain.FeatureFlag // keyed by tenantID
}

func newFakeRepo() *fakeRepo { return &fakeRepo{rows: make(map[string][]domain.FeatureFlag)} }

func (r *fakeRepo) ListForTenant(ctx context.Context, tenantID string) ([]domain.FeatureFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.FeatureFlag{}, r.rows[tenantID]...), nil
}

func (r *fakeRepo) Get(ctx context.Context, tenantID, name string, userID *string) (domain.FeatureFlag, error) {
	return domain.FeatureFlag{}, domain.ErrNotFound
}

func (r *fakeRepo) Set(ctx context.Context, f domain.FeatureFlag) (domain.FeatureFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.rows[f.TenantID]
	for i, row := range rows {
		if row.Name == f.Name {
			rows[i].Enabled = f.Enabled
			return rows[i], nil
		}
	}
	r.rows[f.TenantID] = append(rows, f)
	return f, nil
}

func (r *fakeRepo) Delete(ctx context.Context, tenantID, name string, userID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.rows[tenantID]
	for i, row := range rows {
		if row.Name == name {
			r.rows[tenantID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestEngine(t *testing.T, declared ...string) (*Engine, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	c, err := cache.New(cache.Config{Kind: "memory"})
	require.NoError(t, err)
	return New(repo, c, declared, time.Minute), repo
}

func TestResolveCurrentSet_UnstoredDeclaredFlagDefaultsFalse(t *testing.T) {
	e, _ := newTestEngine(t, "beta_dashboard")
	set, err := e.ResolveCurrentSet(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, false, set["beta_dashboard"])
	assert.Contains(t, set, ExampleFlag, "the reserved example flag is always present")
}

func TestSetDynamic_TenantOverrideBeatsGlobal(t *testing.T) {
	e, _ := newTestEngine(t, "beta_dashboard")
	ctx := context.Background()

	enabled := true
	require.NoError(t, e.SetDynamic(ctx, "beta_dashboard", &enabled, nil))

	set, err := e.ResolveCurrentSet(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, set["beta_dashboard"], "global override should apply to every tenant")

	disabled := false
	require.NoError(t, e.SetDynamic(ctx, "beta_dashboard", nil, map[string]bool{"acme": disabled}))

	set, err = e.ResolveCurrentSet(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, set["beta_dashboard"], "the tenant-scoped override must win over the global one")

	set, err = e.ResolveCurrentSet(ctx, "globex")
	require.NoError(t, err)
	assert.True(t, set["beta_dashboard"], "an unrelated tenant still sees the global value")
}

func TestSetDynamic_RejectsUndeclaredName(t *testing.T) {
	e, _ := newTestEngine(t, "beta_dashboard")
	enabled := true
	err := e.SetDynamic(context.Background(), "totally_unknown_flag", &enabled, nil)
	assert.Error(t, err)
}

func TestResolveSingle_UndeclaredIsServerError(t *testing.T) {
	e, _ := newTestEngine(t, "beta_dashboard")
	_, err := e.ResolveSingle(context.Background(), "acme", "not_declared")
	assert.Error(t, err)
}

func TestSync_RemovesUndeclaredRows(t *testing.T) {
	e, repo := newTestEngine(t, "beta_dashboard")
	ctx := context.Background()

	_, err := repo.Set(ctx, domain.FeatureFlag{Name: "retired_flag", TenantID: "acme", Enabled: true})
	require.NoError(t, err)
	_, err = repo.Set(ctx, domain.FeatureFlag{Name: ReservedPrefix + "INTERNAL", TenantID: "acme", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, e.Sync(ctx, []string{"acme"}))

	rows, err := repo.ListForTenant(ctx, "acme")
	require.NoError(t, err)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	assert.NotContains(t, names, "retired_flag")
	assert.Contains(t, names, ReservedPrefix+"INTERNAL", "reserved flags survive sync regardless of the declared catalog")
}
