package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"safety-service/internal/engine"
	"safety-service/internal/vault"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	Pool   *pgxpool.Pool
	conn   querier
	sealer *vault.Sealer
}

// New opens a pool. PII columns are sealed with sealer; nil stores them as given.
func New(ctx context.Context, dsn string, sealer *vault.Sealer) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if sealer == nil {
		sealer = &vault.Sealer{}
	}
	return &DB{Pool: pool, conn: pool, sealer: sealer}, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (d *DB) WithTx(ctx context.Context, fn func(engine.Tx) error) error {
	return pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
		return fn(&Tx{q: tx})
	})
}

// Tx is the engine's transactional unit backed by a pgx transaction.
type Tx struct {
	q querier
}

// LockSubject takes a transaction scoped advisory lock on the subject id.
func (t *Tx) LockSubject(ctx context.Context, subjectID int64) error {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, subjectID); err != nil {
		return fmt.Errorf("failed to lock tourist %d: %w", subjectID, err)
	}
	return nil
}
