// Package dbx holds the transaction-agnostic query handle shared by every
// repository in the module. Business logic accepts a Querier rather than a
// concrete *sql.DB so the same code path runs standalone or nested inside a
// caller's transaction.
package dbx

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RunInTx begins a transaction at the given isolation level, invokes fn with
// it, and commits iff fn returns nil - rolling back otherwise. Mirrors the
// manual begin/defer-rollback/commit shape used throughout the store layer.
func RunInTx(ctx context.Context, db *sql.DB, level sql.IsolationLevel, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
