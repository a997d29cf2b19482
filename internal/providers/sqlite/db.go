// Package sqlite persists reconciliation state in a single SQLite file:
// the desired and applied state of every resource, the convergence
// history and the per-kind watch cursors.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
}

// Open opens the database at path and initializes the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; the loops of all kinds share this handle.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS resources (
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			payload TEXT NOT NULL,
			resource_version TEXT NOT NULL,
			applied_version TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, key)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create resources table: %w", err)
	}

	// Append-only; one row per convergence attempt.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS resource_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			event_type TEXT NOT NULL,
			resource_version TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			recorded_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_resource ON resource_history(kind, key, id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create resource_history table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS watch_cursors (
			kind TEXT PRIMARY KEY,
			cursor TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create watch_cursors table: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
