package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// LoopStatus is a snapshot of one kind's reconciliation.
type LoopStatus struct {
	Kind           string
	Plugin         string
	State          LoopState
	Cursor         Cursor
	LastError      string
	LastTransition time.Time
}

// loopHandle is the manager-owned bookkeeping for one running kind.
type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// LifecycleManager registers every kind of a Registry, runs one
// WatchLoop per kind and stops them as a group. Loop handles are owned
// by the manager, so independent managers can share a process.
type LifecycleManager struct {
	registrar *SchemaRegistrar
	source    WatchSource
	repo      ResourceRepository
	tracker   VersionTracker
	loopCfg   LoopConfig
	log       *slog.Logger

	mu       sync.Mutex
	running  bool
	started  int
	loops    map[string]*loopHandle
	statuses map[string]*LoopStatus
	wg       sync.WaitGroup
}

func NewLifecycleManager(registrar *SchemaRegistrar, source WatchSource, repo ResourceRepository, tracker VersionTracker, loopCfg LoopConfig) *LifecycleManager {
	return &LifecycleManager{
		registrar: registrar,
		source:    source,
		repo:      repo,
		tracker:   tracker,
		loopCfg:   loopCfg,
		log:       slog.Default().With("component", "lifecycle-manager"),
		loops:     make(map[string]*loopHandle),
		statuses:  make(map[string]*LoopStatus),
	}
}

// Start registers the schema of every kind in registry and launches
// its watch loop. A kind that fails to register is logged, marked
// Failed and reported in the joined error; the other kinds still start.
// The loops run until Stop is called or ctx is cancelled.
func (m *LifecycleManager) Start(ctx context.Context, registry *Registry) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.started = 0
	m.mu.Unlock()

	var errs []error
	started := 0

	for _, reg := range registry.Registrations() {
		kind := reg.Definition.Kind
		m.setStatus(kind.Key(), reg.Plugin, LoopStatePending, "", nil)

		if _, err := m.registrar.EnsureRegistered(ctx, reg.Definition); err != nil {
			m.log.Error("failed to register kind", "kind", kind.Key(), "plugin", reg.Plugin, "error", err)
			m.setStatus(kind.Key(), reg.Plugin, LoopStateFailed, "", err)
			errs = append(errs, fmt.Errorf("register %s: %w", kind.Key(), err))
			continue
		}

		if err := m.launch(ctx, reg); err != nil {
			m.log.Error("failed to launch watch loop", "kind", kind.Key(), "error", err)
			m.setStatus(kind.Key(), reg.Plugin, LoopStateFailed, "", err)
			errs = append(errs, fmt.Errorf("launch %s: %w", kind.Key(), err))
			continue
		}
		started++
	}

	m.mu.Lock()
	m.started = started
	m.mu.Unlock()

	m.log.Info("reconciliation started", "kinds", started, "failed", len(errs))
	return errors.Join(errs...)
}

func (m *LifecycleManager) launch(ctx context.Context, reg Registration) error {
	kind := reg.Definition.Kind
	key := kind.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return errors.New("manager stopped during start")
	}
	if _, exists := m.loops[key]; exists {
		return fmt.Errorf("loop for %s already running", key)
	}

	dispatcher := NewDispatcher(kind, reg.Handler, m.repo, m.tracker)
	loop := NewWatchLoop(kind, m.source, m.tracker, dispatcher, m.loopCfg)
	loop.OnTransition(func(state LoopState, cursor Cursor, err error) {
		m.setStatus(key, reg.Plugin, state, cursor, err)
	})

	loopCtx, cancel := context.WithCancel(ctx)
	h := &loopHandle{cancel: cancel, done: make(chan struct{})}
	m.loops[key] = h

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer cancel()

		if err := loop.Run(loopCtx); err != nil {
			m.log.Error("kind reconciliation stopped", "kind", key, "error", err)
		}
	}()

	return nil
}

// Stop cancels every loop, which aborts their in-flight watches, and
// waits for all of them to exit or for ctx to expire. It is safe to
// call without a prior Start and after a partial one.
func (m *LifecycleManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	handles := m.loops
	m.loops = make(map[string]*loopHandle)
	m.mu.Unlock()

	m.log.Info("stopping reconciliation", "loops", len(handles))
	for _, h := range handles {
		h.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("reconciliation stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for watch loops: %w", ctx.Err())
	}
}

// Started reports how many loops the last Start launched, whether or
// not they are still running.
func (m *LifecycleManager) Started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Running reports the number of loops that have not exited yet.
func (m *LifecycleManager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, h := range m.loops {
		select {
		case <-h.done:
		default:
			n++
		}
	}
	return n
}

// Status returns the snapshot for one kind.
func (m *LifecycleManager) Status(kind string) (LoopStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.statuses[kind]
	if !ok {
		return LoopStatus{}, false
	}
	return *s, true
}

// Statuses returns snapshots for every known kind ordered by kind.
func (m *LifecycleManager) Statuses() []LoopStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LoopStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (m *LifecycleManager) setStatus(kind, plugin string, state LoopState, cursor Cursor, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.statuses[kind]
	if !ok {
		s = &LoopStatus{Kind: kind, Plugin: plugin}
		m.statuses[kind] = s
	}

	s.State = state
	if !cursor.IsZero() {
		s.Cursor = cursor
	}
	s.LastError = ""
	if err != nil {
		s.LastError = err.Error()
	}
	s.LastTransition = time.Now()
}
