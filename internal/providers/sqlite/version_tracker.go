package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/otterscale/resource-adapter/internal/core"
)

type versionTracker struct {
	db *DB
}

// NewVersionTracker returns a core.VersionTracker stored in db.
func NewVersionTracker(db *DB) core.VersionTracker {
	return &versionTracker{db: db}
}

var _ core.VersionTracker = (*versionTracker)(nil)

func (t *versionTracker) Get(ctx context.Context, kind core.ResourceKind) (core.Cursor, error) {
	var cursor string

	err := t.db.QueryRowContext(ctx, `SELECT cursor FROM watch_cursors WHERE kind = ?`, kind.Key()).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cursor: %w", err)
	}

	return core.Cursor(cursor), nil
}

func (t *versionTracker) Set(ctx context.Context, kind core.ResourceKind, cursor core.Cursor) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO watch_cursors (kind, cursor, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = excluded.updated_at
	`, kind.Key(), cursor.String(), time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}
	return nil
}
