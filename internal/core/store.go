package core

import (
	"context"
	"time"
)

// Record is the durable repository row for one resource: the latest
// desired state and the version the plugin last accepted.
type Record struct {
	Resource *Resource
	// AppliedVersion is empty until the plugin accepts a create or
	// update for this resource.
	AppliedVersion Cursor
	UpdatedAt      time.Time
}

// Applied reports whether the plugin has accepted any version of the
// resource.
func (r *Record) Applied() bool {
	return r != nil && !r.AppliedVersion.IsZero()
}

// HistoryEntry is one convergence attempt recorded by the dispatcher.
type HistoryEntry struct {
	Kind            string
	Key             string
	EventType       WatchEventType
	ResourceVersion Cursor
	Outcome         string
	Reason          string
	RecordedAt      time.Time
}

// ResourceRepository durably stores desired specs and last-applied
// state, keyed by kind and resource key. All writes must be safe to
// repeat: storing over an identical record and deleting a missing one
// are no-ops.
type ResourceRepository interface {
	// Get returns the record, or (nil, nil) when none exists.
	Get(ctx context.Context, kind ResourceKind, key string) (*Record, error)
	Store(ctx context.Context, kind ResourceKind, resource *Resource) error
	MarkApplied(ctx context.Context, kind ResourceKind, key string, version Cursor) error
	Delete(ctx context.Context, kind ResourceKind, key string) error
	List(ctx context.Context, kind ResourceKind) ([]*Record, error)
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	// History returns up to limit entries for a resource, newest first.
	History(ctx context.Context, kind ResourceKind, key string, limit int) ([]HistoryEntry, error)
}

// VersionTracker persists the last applied cursor per kind.
type VersionTracker interface {
	// Get returns the zero cursor when nothing was stored yet.
	Get(ctx context.Context, kind ResourceKind) (Cursor, error)
	Set(ctx context.Context, kind ResourceKind, cursor Cursor) error
}
