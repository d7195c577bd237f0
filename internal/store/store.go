// Package store provides the SQLite-backed event and report stores.
// A single write connection (WAL mode) serializes mutations; a small
// read pool serves concurrent readers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Sentinel errors returned by store lookups.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrNotActive indicates a seal attempt on a report that is no
	// longer active. The lifecycle engine maps this to its
	// already-frozen error.
	ErrNotActive = errors.New("store: report is not active")
)

// DB wraps the write and read connections shared by the event and
// report stores.
type DB struct {
	writeDB *sql.DB
	readDB  *sql.DB
	path    string
	log     zerolog.Logger

	// Write-only lock; reads go through the read pool unguarded.
	mu sync.Mutex
}

// Open opens (or creates) the report database and applies the schema.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	writeDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("store: failed to open read pool: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		writeDB: writeDB,
		readDB:  readDB,
		path:    path,
		log:     logger,
	}

	if err := db.migrate(); err != nil {
		readDB.Close()
		writeDB.Close()
		return nil, fmt.Errorf("store: failed to initialize schema: %w", err)
	}

	logger.Debug().Str("path", path).Msg("report database opened")
	return db, nil
}

// migrate applies all schema statements on the write connection.
func (d *DB) migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, stmt := range schemaSQL() {
		if _, err := d.writeDB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RunInTx runs fn inside a single transaction on the write connection.
// The freeze critical section (claim + seal) goes through here so a
// partial failure rolls back cleanly.
func (d *DB) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}

// exec runs a single statement on the write connection under the write lock.
func (d *DB) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeDB.ExecContext(ctx, query, args...)
}

// Close closes both connections.
func (d *DB) Close() error {
	if err := d.readDB.Close(); err != nil {
		d.writeDB.Close()
		return err
	}
	return d.writeDB.Close()
}

// nanos converts a time to the integer representation stored in SQLite.
func nanos(t time.Time) int64 {
	return t.UnixNano()
}

// fromNanos converts a stored integer timestamp back to a time.
func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
