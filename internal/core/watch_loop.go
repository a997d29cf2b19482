package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// LoopState is the observable state of a WatchLoop.
type LoopState string

const (
	LoopStatePending      LoopState = "Pending"
	LoopStateConnecting   LoopState = "Connecting"
	LoopStateStreaming    LoopState = "Streaming"
	LoopStateReconnecting LoopState = "Reconnecting"
	LoopStateDraining     LoopState = "Draining"
	LoopStateStopped      LoopState = "Stopped"
	LoopStateFailed       LoopState = "Failed"
)

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

// LoopConfig tunes the reconnect backoff of a WatchLoop.
type LoopConfig struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
	return c
}

// TransitionFunc observes state changes of a loop and cursor advances
// while streaming. err is the error that caused the transition, if any.
type TransitionFunc func(state LoopState, cursor Cursor, err error)

// WatchLoop keeps one kind in sync: it opens a watch from the tracked
// cursor, hands every event to its Dispatcher in delivery order and
// reconnects after transient failures.
type WatchLoop struct {
	kind       ResourceKind
	source     WatchSource
	tracker    VersionTracker
	dispatcher *Dispatcher
	cfg        LoopConfig
	metrics    *reconcileMetrics
	log        *slog.Logger
	observe    TransitionFunc

	// resync is set after the server reported the cursor as expired or
	// a list ended early; the next connect re-lists the current state.
	resync bool
}

func NewWatchLoop(kind ResourceKind, source WatchSource, tracker VersionTracker, dispatcher *Dispatcher, cfg LoopConfig) *WatchLoop {
	return &WatchLoop{
		kind:       kind,
		source:     source,
		tracker:    tracker,
		dispatcher: dispatcher,
		cfg:        cfg.withDefaults(),
		metrics:    newReconcileMetrics(),
		log:        slog.Default().With("component", "watch-loop", "kind", kind.Key()),
		observe:    func(LoopState, Cursor, error) {},
	}
}

// OnTransition registers fn to be called on every state change. It
// must be set before Run.
func (l *WatchLoop) OnTransition(fn TransitionFunc) {
	if fn != nil {
		l.observe = fn
	}
}

// Run blocks until ctx is cancelled (returns nil) or a fatal error
// stops the loop (returns the error).
func (l *WatchLoop) Run(ctx context.Context) error {
	l.metrics.loopStarted(l.kind)
	defer l.metrics.loopStopped(l.kind)

	bo := newBackoff(l.cfg.BackoffBase, l.cfg.BackoffMax)

	for {
		if ctx.Err() != nil {
			l.drain()
			return nil
		}

		l.transition(LoopStateConnecting, nil)
		err := l.session(ctx, bo)

		if ctx.Err() != nil {
			l.drain()
			return nil
		}

		if !IsTransient(err) {
			l.transition(LoopStateFailed, err)
			l.log.Error("reconciliation stopped", "error", err)
			return fmt.Errorf("watch %s: %w", l.kind.Key(), err)
		}

		if IsGone(err) {
			l.resync = true
		}

		delay := bo.Next()
		l.transition(LoopStateReconnecting, err)
		l.metrics.reconnect(ctx, l.kind, reconnectReason(err))
		l.log.Info("reconnecting watch", "delay", delay, "reason", err)

		if !sleepCtx(ctx, delay) {
			l.drain()
			return nil
		}
	}
}

// session runs one Connecting → Streaming cycle and returns the error
// that ended it. It never returns nil.
func (l *WatchLoop) session(ctx context.Context, bo *backoff) error {
	cursor, err := l.tracker.Get(ctx, l.kind)
	if err != nil {
		return &DomainError{Code: ErrorCodeUnavailable, Message: "read cursor", Cause: err}
	}
	l.dispatcher.Resume(cursor)

	since := cursor
	if l.resync {
		l.log.Warn("re-listing current state", "cursor", cursor)
		since = ""
		l.resync = false
	}

	w, err := l.source.Watch(ctx, l.kind, since)
	if err != nil {
		return err
	}
	defer w.Stop()

	// listed holds the keys of the current state while it is being
	// listed; nil once the list is complete or when resuming a cursor.
	var listed map[string]struct{}
	if since.IsZero() {
		listed = make(map[string]struct{})
		defer func() {
			// An interrupted list is repeated on the next connect.
			if listed != nil {
				l.resync = true
			}
		}()
	}

	l.transition(LoopStateStreaming, nil)
	l.log.Debug("watch opened", "since", since)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.ResultChan():
			if !ok {
				return errStreamClosed
			}

			switch ev.Type {
			case WatchEventError:
				if ev.Err == nil {
					return &DecodeError{Reason: "error event without status"}
				}
				return ev.Err

			case WatchEventBookmark:
				if !ev.ListComplete || listed == nil {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var version Cursor
				if ev.Object != nil {
					version = ev.Object.Version()
				}
				before := l.dispatcher.Cursor()
				if err := l.dispatcher.Prune(ctx, listed, version); err != nil {
					return err
				}
				listed = nil
				if l.dispatcher.Cursor() != before {
					l.transition(LoopStateStreaming, nil)
				}

			case WatchEventAdded, WatchEventModified, WatchEventDeleted:
				// Nothing is dispatched once shutdown has begun.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if listed != nil && ev.Object != nil && ev.Type != WatchEventDeleted {
					listed[ev.Object.Key()] = struct{}{}
				}
				before := l.dispatcher.Cursor()
				l.dispatcher.Apply(ctx, ev)
				bo.Reset()
				if l.dispatcher.Cursor() != before {
					l.transition(LoopStateStreaming, nil)
				}

			default:
				return &DecodeError{Reason: fmt.Sprintf("unknown event type %q", ev.Type)}
			}
		}
	}
}

func (l *WatchLoop) drain() {
	l.transition(LoopStateDraining, nil)
	l.transition(LoopStateStopped, nil)
	l.log.Debug("watch loop stopped")
}

func (l *WatchLoop) transition(state LoopState, err error) {
	l.observe(state, l.dispatcher.Cursor(), err)
}

func reconnectReason(err error) string {
	switch {
	case errors.Is(err, errStreamClosed):
		return "closed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case IsGone(err):
		return "expired"
	default:
		return string(CodeOf(err))
	}
}
