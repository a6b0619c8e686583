// Package store is the Policy Store (C2): the persistent record of
// key-users, signing conditions, policies, tokens, pending requests, and
// the audit log. It is backed by Postgres via jackc/pgx/v5, grounded on the
// teacher's pkg/pat and pkg/apikey store query style (raw SQL, manual Scan)
// rather than the sqlc-generated style of its internal/audit package, since
// no sqlc toolchain output is available in this environment.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Policy Store. It satisfies internal/auth.Store so the
// dashboard auth middleware can authenticate against it directly.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Policy Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
