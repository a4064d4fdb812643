// Package pg is the Postgres adapter layer: one file per aggregate,
// implementing the Store interfaces defined by internal/authx,
// internal/tenant, internal/document, internal/signer, and
// internal/signing against the schema in ops/migrations/sql. Every method
// takes an explicit dbx.Querier so the same code runs standalone or nested
// inside a caller's transaction, mirroring the teacher's own
// internal/store/pg/pgstore.go pattern.
package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps the connection pool every per-aggregate store is built from.
type DB struct {
	sql *sql.DB
}

// Open dials dsn and tunes the pool exactly as the teacher's pgstore.go did
// for the ledger: these numbers are a starting point for a single-instance
// deployment, not load-tested here.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(15 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return &DB{sql: conn}, nil
}

// Close releases the pool.
func (d *DB) Close() error { return d.sql.Close() }

// Conn returns the underlying *sql.DB for callers that drive their own
// transactions (internal/document.Upload, internal/signing.Commit, ...).
func (d *DB) Conn() *sql.DB { return d.sql }

// Ping verifies connectivity, used by internal/httpapi's readiness probe.
func (d *DB) Ping() error { return d.sql.Ping() }
