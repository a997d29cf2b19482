package core

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher routes the events of one kind to its handler and owns the
// apply-then-advance sequence. It never touches the network; all side
// effects go through the repository, the tracker and the handler.
//
// A Dispatcher is not safe for concurrent use; each WatchLoop owns one.
type Dispatcher struct {
	kind    ResourceKind
	handler Handler
	repo    ResourceRepository
	tracker VersionTracker
	metrics *reconcileMetrics
	log     *slog.Logger

	cursor Cursor
}

func NewDispatcher(kind ResourceKind, handler Handler, repo ResourceRepository, tracker VersionTracker) *Dispatcher {
	return &Dispatcher{
		kind:    kind,
		handler: handler,
		repo:    repo,
		tracker: tracker,
		metrics: newReconcileMetrics(),
		log:     slog.Default().With("component", "dispatcher", "kind", kind.Key()),
	}
}

// Resume sets the cursor the dispatcher compares incoming versions
// against. The watch loop calls it with the tracked cursor on every
// (re)connect.
func (d *Dispatcher) Resume(cursor Cursor) {
	d.cursor = cursor
}

// Cursor returns the last cursor the dispatcher advanced to or resumed
// from.
func (d *Dispatcher) Cursor() Cursor {
	return d.cursor
}

// Apply converges a single event. Events at or before the cursor were
// applied already and are accepted without side effects.
func (d *Dispatcher) Apply(ctx context.Context, ev WatchEvent) Outcome {
	obj := ev.Object
	if obj == nil {
		return Failf("%s event without object", ev.Type)
	}

	version := obj.Version()
	if version.AtOrBefore(d.cursor) {
		d.log.Debug("skipping replayed event", "type", ev.Type, "key", obj.Key(), "version", version, "cursor", d.cursor)
		return Accepted{}
	}

	var outcome Outcome
	switch ev.Type {
	case WatchEventAdded, WatchEventModified:
		outcome = d.converge(ctx, obj)
	case WatchEventDeleted:
		outcome = d.remove(ctx, obj)
	default:
		return Failf("unsupported event type %s", ev.Type)
	}

	d.metrics.convergence(ctx, d.kind, ev.Type, outcome)
	d.record(ctx, ev.Type, obj, outcome)

	if f, ok := outcome.(Failed); ok {
		d.log.Warn("convergence failed", "type", ev.Type, "key", obj.Key(), "version", version, "reason", f.Reason)
	} else {
		d.log.Debug("converged", "type", ev.Type, "key", obj.Key(), "version", version)
	}

	return outcome
}

// Prune deletes every tracked resource whose key is missing from
// listed. The watch loop calls it once a re-list has delivered the
// complete current state at version; a record it no longer contains
// was deleted while no watch was open.
func (d *Dispatcher) Prune(ctx context.Context, listed map[string]struct{}, version Cursor) error {
	records, err := d.repo.List(ctx, d.kind)
	if err != nil {
		return &DomainError{Code: ErrorCodeUnavailable, Message: "list records", Cause: err}
	}

	for _, rec := range records {
		if rec.Resource == nil {
			continue
		}
		if _, ok := listed[rec.Resource.Key()]; ok {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		obj := rec.Resource.DeepCopy()
		obj.Metadata.ResourceVersion = version.String()

		outcome := d.remove(ctx, obj)
		d.metrics.convergence(ctx, d.kind, WatchEventDeleted, outcome)
		d.record(ctx, WatchEventDeleted, obj, outcome)

		if f, ok := outcome.(Failed); ok {
			d.log.Warn("prune failed", "key", obj.Key(), "version", version, "reason", f.Reason)
		} else {
			d.log.Info("pruned resource missing from re-list", "key", obj.Key(), "version", version)
		}
	}
	return nil
}

func (d *Dispatcher) converge(ctx context.Context, obj *Resource) Outcome {
	key := obj.Key()
	version := obj.Version()

	prior, err := d.repo.Get(ctx, d.kind, key)
	if err != nil {
		return Failf("load record %s: %v", key, err)
	}

	// Same version already accepted: only the cursor may be behind.
	if prior.Applied() && !version.IsZero() && prior.AppliedVersion == version {
		return d.advance(ctx, version)
	}

	if err := d.repo.Store(ctx, d.kind, obj); err != nil {
		return Failf("store %s: %v", key, err)
	}

	var outcome Outcome
	if prior.Applied() {
		outcome = d.handler.Update(ctx, obj)
	} else {
		outcome = d.handler.Create(ctx, obj)
	}
	if !IsAccepted(outcome) {
		return outcome
	}

	if err := d.repo.MarkApplied(ctx, d.kind, key, version); err != nil {
		return Failf("mark %s applied: %v", key, err)
	}

	return d.advance(ctx, version)
}

func (d *Dispatcher) remove(ctx context.Context, obj *Resource) Outcome {
	outcome := d.handler.Delete(ctx, obj)
	if !IsAccepted(outcome) {
		// Keep the record so a later pass can retry the delete.
		return outcome
	}

	if err := d.repo.Delete(ctx, d.kind, obj.Key()); err != nil {
		return Failf("delete record %s: %v", obj.Key(), err)
	}

	return d.advance(ctx, obj.Version())
}

// advance moves the tracked cursor forward. It never moves it back.
func (d *Dispatcher) advance(ctx context.Context, version Cursor) Outcome {
	if !version.After(d.cursor) {
		return Accepted{}
	}
	if err := d.tracker.Set(ctx, d.kind, version); err != nil {
		return Failf("advance cursor to %s: %v", version, err)
	}
	d.cursor = version
	return Accepted{}
}

func (d *Dispatcher) record(ctx context.Context, eventType WatchEventType, obj *Resource, outcome Outcome) {
	entry := HistoryEntry{
		Kind:            d.kind.Key(),
		Key:             obj.Key(),
		EventType:       eventType,
		ResourceVersion: obj.Version(),
		Outcome:         outcomeLabel(outcome),
		Reason:          outcomeReason(outcome),
		RecordedAt:      time.Now().UTC(),
	}
	if err := d.repo.AppendHistory(context.WithoutCancel(ctx), entry); err != nil {
		d.log.Warn("failed to append history", "key", obj.Key(), "error", err)
	}
}
