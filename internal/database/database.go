// Package database implements the invite code store, the rate limit counter
// store, and the account directory on Postgres. Every operation with a
// correctness invariant (consume-if-unused, counter increment, uniqueness)
// is a single conditional statement so concurrency is decided at the
// storage layer, never by an application-level read-then-write.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Database wraps a Postgres connection pool.
type Database struct {
	db *sql.DB
}

// Open connects to Postgres with tuned pool defaults.
func Open(dsn string) (*Database, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Database{db: db}, nil
}

// New wraps an existing handle (useful for tests).
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Close() error { return d.db.Close() }

// DB exposes the underlying handle for readiness probes.
func (d *Database) DB() *sql.DB { return d.db }

// EnsureSchema applies the schema when the invite_codes table is missing.
func (d *Database) EnsureSchema(ctx context.Context) error {
	var reg sql.NullString
	err := d.db.QueryRowContext(ctx, `select to_regclass('invite_codes')`).Scan(&reg)
	if err != nil {
		return fmt.Errorf("checking schema: %w", err)
	}
	if reg.Valid {
		return nil
	}
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a violation of the named
// constraint. An empty constraint matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
