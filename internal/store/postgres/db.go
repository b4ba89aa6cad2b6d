// Package postgres implements every internal/domain repository interface
// against PostgreSQL via pgx, the way the teacher's internal/store/adapters/pg
// package does: one small struct per aggregate, hand-written SQL, no ORM.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasehq/corehub/internal/domain"
)

// Queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// repository method run either against the pool directly or against an
// enclosing transaction without a second code path.
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB bundles the pool and exposes WithTx for the few operations that span
// more than one repository write (user creation, merge).
type DB struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *DB { return &DB{Pool: pool} }

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic, mirroring the teacher's inline
// Begin/defer-Rollback/Commit pattern but factored out since SPEC_FULL's
// user directory needs it in more than one place.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, q Queryer) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// mapNoRows turns pgx.ErrNoRows into domain.ErrNotFound, the translation
// every Get-by-X method in this package performs at its single Scan call.
func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// MapNoRows is mapNoRows exported for sibling repository packages (e.g.
// store/postgres/mgmtstore) that can't reach this package's unexported
// helper.
func MapNoRows(err error) error { return mapNoRows(err) }

// AdvisoryLock runs fn while holding a transaction-level Postgres
// advisory lock on key, releasing it automatically on commit or
// rollback. Startup sync (permission catalog, mandatory roles) uses this
// to stay safe against several replicas booting concurrently.
func AdvisoryLock(ctx context.Context, pool *pgxpool.Pool, key int64, fn func(ctx context.Context, q Queryer) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin advisory lock tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("postgres: acquire advisory lock %d: %w", key, err)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
