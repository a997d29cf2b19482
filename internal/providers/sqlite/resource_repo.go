package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/otterscale/resource-adapter/internal/core"
)

type resourceRepo struct {
	db *DB
}

// NewResourceRepo returns a core.ResourceRepository stored in db.
func NewResourceRepo(db *DB) core.ResourceRepository {
	return &resourceRepo{db: db}
}

var _ core.ResourceRepository = (*resourceRepo)(nil)

func (r *resourceRepo) Get(ctx context.Context, kind core.ResourceKind, key string) (*core.Record, error) {
	var (
		payload   string
		applied   string
		updatedAt int64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT payload, applied_version, updated_at FROM resources
		WHERE kind = ? AND key = ?
	`, kind.Key(), key).Scan(&payload, &applied, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	return decodeRecord(payload, applied, updatedAt)
}

// Store upserts the desired state. The applied version of an existing
// row is left untouched.
func (r *resourceRepo) Store(ctx context.Context, kind core.ResourceKind, resource *core.Resource) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO resources (kind, key, payload, resource_version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET
			payload = excluded.payload,
			resource_version = excluded.resource_version,
			updated_at = excluded.updated_at
	`, kind.Key(), resource.Key(), string(data), resource.Version().String(), time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store resource: %w", err)
	}

	return nil
}

func (r *resourceRepo) MarkApplied(ctx context.Context, kind core.ResourceKind, key string, version core.Cursor) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE resources SET applied_version = ?, updated_at = ?
		WHERE kind = ? AND key = ?
	`, version.String(), time.Now().UTC().UnixNano(), kind.Key(), key)
	if err != nil {
		return fmt.Errorf("failed to mark resource applied: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark resource applied: %w", err)
	}
	if n == 0 {
		return &core.DomainError{
			Code:    core.ErrorCodeNotFound,
			Message: fmt.Sprintf("no stored record for %s %s", kind.Key(), key),
		}
	}

	return nil
}

func (r *resourceRepo) Delete(ctx context.Context, kind core.ResourceKind, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE kind = ? AND key = ?`, kind.Key(), key)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

func (r *resourceRepo) List(ctx context.Context, kind core.ResourceKind) ([]*core.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload, applied_version, updated_at FROM resources
		WHERE kind = ?
		ORDER BY key
	`, kind.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var records []*core.Record
	for rows.Next() {
		var (
			payload   string
			applied   string
			updatedAt int64
		)
		if err := rows.Scan(&payload, &applied, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}

		rec, err := decodeRecord(payload, applied, updatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *resourceRepo) AppendHistory(ctx context.Context, entry core.HistoryEntry) error {
	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resource_history (kind, key, event_type, resource_version, outcome, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.Kind, entry.Key, string(entry.EventType), entry.ResourceVersion.String(), entry.Outcome, entry.Reason, recordedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// History returns up to limit entries, newest first. A non-positive
// limit returns every entry.
func (r *resourceRepo) History(ctx context.Context, kind core.ResourceKind, key string, limit int) ([]core.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, key, event_type, resource_version, outcome, reason, recorded_at
		FROM resource_history
		WHERE kind = ? AND key = ?
		ORDER BY id DESC
		LIMIT ?
	`, kind.Key(), key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry
	for rows.Next() {
		var (
			e          core.HistoryEntry
			eventType  string
			version    string
			recordedAt int64
		)
		if err := rows.Scan(&e.Kind, &e.Key, &eventType, &version, &e.Outcome, &e.Reason, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.EventType = core.WatchEventType(eventType)
		e.ResourceVersion = core.Cursor(version)
		e.RecordedAt = time.Unix(0, recordedAt).UTC()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func decodeRecord(payload, applied string, updatedAt int64) (*core.Record, error) {
	var res core.Resource
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resource: %w", err)
	}
	return &core.Record{
		Resource:       &res,
		AppliedVersion: core.Cursor(applied),
		UpdatedAt:      time.Unix(0, updatedAt).UTC(),
	}, nil
}
