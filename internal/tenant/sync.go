package tenant

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasehq/corehub/internal/config"
	"github.com/lightbasehq/corehub/internal/store/postgres"
)

// advisoryLockKey is the fixed numeric key startup synchronization
// acquires before writing the tenant catalog, so that several replicas
// booting at once serialize instead of racing inserts (spec.md §5).
const advisoryLockKey = 7_001

// Sync persists the Resolver's validated view of the tenant document
// into storage, inserting or updating one row per name.
func Sync(ctx context.Context, pool *pgxpool.Pool, r *Resolver) error {
	return postgres.AdvisoryLock(ctx, pool, advisoryLockKey, func(ctx context.Context, q postgres.Queryer) error {
		repo := postgres.NewTenantRepo(q)
		for _, t := range r.All() {
			if err := repo.Upsert(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadResolver is the startup convenience that chains config loading,
// validation, and the in-memory index build.
func LoadResolver(env config.Environment, path string) (*Resolver, error) {
	doc, err := config.LoadTenantsDocument(path)
	if err != nil {
		return nil, err
	}
	return Build(env, doc)
}
