package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

const txKey contextKey = "db_tx"

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction. Repositories called with the context
// passed to fn pick the transaction up through TxFromContext. The transaction
// commits when fn returns nil and rolls back otherwise. Nested calls reuse the
// outer transaction.
func WithTx(ctx context.Context, b Beginner, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TxFromContext returns the transaction started by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Conn returns the transaction in ctx when there is one, else fallback.
func Conn(ctx context.Context, fallback Querier) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}

// LockKey takes a transaction-scoped advisory lock on key. It must run inside
// WithTx; the lock is released at commit or rollback.
func LockKey(ctx context.Context, key string) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return errors.New("advisory lock requires a transaction")
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}

// Transactor runs fn atomically while holding an exclusive lock on every key.
type Transactor interface {
	Atomically(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

func lockOrder(keys []string) []string {
	return slices.Compact(slices.Sorted(slices.Values(keys)))
}

type advisoryTx struct{ pool Beginner }

// NewTransactor serializes writers per key with transaction-scoped advisory
// locks, so the guarded reads and writes share one transaction. Keys are
// locked in sorted order.
func NewTransactor(pool Beginner) Transactor { return &advisoryTx{pool: pool} }

func (t *advisoryTx) Atomically(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	return WithTx(ctx, t.pool, func(ctx context.Context) error {
		for _, k := range lockOrder(keys) {
			if err := LockKey(ctx, k); err != nil {
				return err
			}
		}
		return fn(ctx)
	})
}

const heldKey contextKey = "db_local_locks"

// LocalTransactor serializes callers per key inside one process. It gives no
// rollback; it stands in for NewTransactor when there is no database.
type LocalTransactor struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalTransactor() *LocalTransactor {
	return &LocalTransactor{locks: make(map[string]*sync.Mutex)}
}

func (t *LocalTransactor) Atomically(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	// Nested calls run under the outer call's locks.
	if ctx.Value(heldKey) == t {
		return fn(ctx)
	}
	ordered := lockOrder(keys)
	for _, k := range ordered {
		t.mu.Lock()
		m, ok := t.locks[k]
		if !ok {
			m = &sync.Mutex{}
			t.locks[k] = m
		}
		t.mu.Unlock()
		m.Lock()
		defer m.Unlock()
	}
	return fn(context.WithValue(ctx, heldKey, t))
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique or primary key constraint failure.
func IsUniqueViolation(err error) bool { return pgCode(err) == codeUniqueViolation }

// IsForeignKeyViolation reports a reference to a missing row.
func IsForeignKeyViolation(err error) bool { return pgCode(err) == codeForeignKeyViolation }

// IsCheckViolation reports a CHECK constraint failure.
func IsCheckViolation(err error) bool { return pgCode(err) == codeCheckViolation }

// IsNotFound reports pgx.ErrNoRows.
func IsNotFound(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
