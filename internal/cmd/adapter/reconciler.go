package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/internal/leader"
	"github.com/otterscale/resource-adapter/internal/transport"
)

// errLeadershipLost ends the process so a restarted replica rejoins
// the election with a clean state.
var errLeadershipLost = errors.New("leader lease lost")

// Reconciler runs the lifecycle manager as a transport.Listener. With
// an elector it only reconciles while holding the lease.
type Reconciler struct {
	manager  *core.LifecycleManager
	registry *core.Registry
	elector  *leader.Elector
	log      *slog.Logger
}

// NewReconciler accepts a nil elector, meaning reconcile
// unconditionally.
func NewReconciler(manager *core.LifecycleManager, registry *core.Registry, elector *leader.Elector) *Reconciler {
	return &Reconciler{
		manager:  manager,
		registry: registry,
		elector:  elector,
		log:      slog.Default().With("component", "reconciler"),
	}
}

// Start blocks until ctx is cancelled. It fails when no kind at all
// could be started, or when an elected replica loses its lease.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.elector == nil {
		return r.reconcile(ctx)
	}

	r.log.Info("waiting for leadership", "identity", r.elector.Identity())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := make(chan error, 1)
	err := r.elector.Run(runCtx,
		func(leadCtx context.Context) {
			r.log.Info("acquired leadership")
			if err := r.reconcile(leadCtx); err != nil {
				failed <- err
				cancel()
			}
		},
		func() {
			r.log.Info("leadership released, stopping reconciliation")
			stopCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), transport.DefaultShutdownTimeout)
			defer stop()
			if err := r.manager.Stop(stopCtx); err != nil {
				r.log.Error("failed to stop reconciliation", "error", err)
			}
		},
	)
	if err != nil {
		return fmt.Errorf("leader election: %w", err)
	}

	select {
	case err := <-failed:
		return err
	default:
	}
	if ctx.Err() != nil {
		return nil
	}
	return errLeadershipLost
}

// Stop waits for every watch loop to exit, bounded by ctx.
func (r *Reconciler) Stop(ctx context.Context) error {
	return r.manager.Stop(ctx)
}

func (r *Reconciler) reconcile(ctx context.Context) error {
	if err := r.manager.Start(ctx, r.registry); err != nil {
		if r.registry.Len() > 0 && r.manager.Started() == 0 {
			return fmt.Errorf("no kind could be started: %w", err)
		}
		r.log.Warn("some kinds failed to start", "error", err)
	}

	<-ctx.Done()
	return nil
}
