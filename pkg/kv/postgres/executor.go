package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leafsii/relkv/pkg/kv"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so directory and
// value-store helpers run unchanged inside or outside an atomic block.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Executor runs single statements against the pool and groups multi-statement
// commands into transactions.
type Executor struct {
	pool    *pgxpool.Pool
	metrics kv.Recorder
}

// NewExecutor wraps pool. metrics may be nil.
func NewExecutor(pool *pgxpool.Pool, metrics kv.Recorder) *Executor {
	return &Executor{pool: pool, metrics: metrics}
}

// Exec runs one statement.
func (e *Executor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := e.pool.Exec(ctx, sql, args...)
	return tag, mapError(err)
}

// Query runs one statement returning rows. Row errors are not mapped.
func (e *Executor) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := e.pool.Query(ctx, sql, args...)
	return rows, mapError(err)
}

// QueryRow runs one statement returning at most one row.
func (e *Executor) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return e.pool.QueryRow(ctx, sql, args...)
}

// RunAtomic executes fn inside a read-committed transaction on one borrowed
// connection. The transaction commits when fn returns nil and is rolled back
// when fn returns an error or panics; the error is returned to the caller.
func (e *Executor) RunAtomic(ctx context.Context, op string, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordTransaction(ctx, kv.BackendPostgres, op, time.Since(start), err)
		}
	}()

	err = pgx.BeginTxFunc(ctx, e.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
	return mapError(err)
}

// RunAtomicValue is RunAtomic for blocks that produce a result.
func RunAtomicValue[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	var out T
	err := e.RunAtomic(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
