// Package sqlite provides SQLite-backed implementations of outbound ports
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// schema creates the tables on first connect. Timestamps are stored as
// RFC3339 strings with their zone offset; event dates as YYYY-MM-DD.
const schema = `
CREATE TABLE IF NOT EXISTS scheduled_sessions (
	email          TEXT NOT NULL,
	event_date     TEXT NOT NULL,
	original_start TEXT NOT NULL,
	original_end   TEXT NOT NULL,
	name           TEXT NOT NULL,
	event_title    TEXT NOT NULL,
	is_active      INTEGER NOT NULL DEFAULT 1,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	PRIMARY KEY (email, event_date, original_start, original_end)
);

CREATE INDEX IF NOT EXISTS idx_scheduled_sessions_email
	ON scheduled_sessions (email);
CREATE INDEX IF NOT EXISTS idx_scheduled_sessions_date
	ON scheduled_sessions (event_date);

CREATE TABLE IF NOT EXISTS admin_accounts (
	email         TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
`

// DB manages the SQLite database handle shared by the stores in this package.
type DB struct {
	path string

	connectOnce sync.Once
	connectErr  error
	db          *sql.DB
}

// New creates an unconnected DB for the given file path. Call Connect before
// handing it to the stores.
func New(path string) *DB {
	return &DB{path: path}
}

// Connect opens the database and applies the schema. Idempotent: concurrent
// and repeated calls share one connection attempt and its result.
func (d *DB) Connect(ctx context.Context) error {
	d.connectOnce.Do(func() {
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", d.path)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			d.connectErr = fmt.Errorf("open database: %w", err)
			return
		}
		// modernc.org/sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY churn under concurrent transactions.
		db.SetMaxOpenConns(1)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			d.connectErr = fmt.Errorf("ping database: %w", err)
			return
		}
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			d.connectErr = fmt.Errorf("apply schema: %w", err)
			return
		}
		d.db = db
	})
	return d.connectErr
}

// Close closes the database handle.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (d *DB) Ping(ctx context.Context) error {
	if d.db == nil {
		return fmt.Errorf("database not connected")
	}
	return d.db.PingContext(ctx)
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic and committing otherwise.
func (d *DB) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx,
// letting the stores run the same statements in and out of transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
