// Package adapter implements the run-mode runtime: the reconciler, the
// ops HTTP endpoint and background maintenance, supervised together by
// transport.Serve.
package adapter

import (
	"context"
	"fmt"
	"time"

	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"

	"github.com/otterscale/resource-adapter/internal/transport"
	"github.com/otterscale/resource-adapter/internal/transport/http"
)

// Config holds the runtime parameters for an Adapter.
type Config struct {
	OpsAddress      string
	AllowedOrigins  []string
	BearerToken     string
	ShutdownTimeout time.Duration
}

// Adapter binds the ops HTTP server, the reconciler and the background
// listeners, running them in parallel via transport.Serve.
type Adapter struct {
	handler    *Handler
	reconciler *Reconciler
	background BackgroundListeners
}

func NewAdapter(handler *Handler, reconciler *Reconciler, background BackgroundListeners) *Adapter {
	return &Adapter{handler: handler, reconciler: reconciler, background: background}
}

// Run blocks until ctx is cancelled or a component fails. Health and
// readiness endpoints never require the bearer token.
func (a *Adapter) Run(ctx context.Context, cfg Config) error {
	httpSrv, err := http.NewServer(
		http.WithAddress(cfg.OpsAddress),
		http.WithAllowedOrigins(cfg.AllowedOrigins),
		http.WithBearerToken(cfg.BearerToken),
		http.WithPublicPaths([]string{
			"/" + grpchealth.HealthV1ServiceName + "/Check",
			"/" + grpchealth.HealthV1ServiceName + "/Watch",
			"/" + grpcreflect.ReflectV1ServiceName + "/ServerReflectionInfo",
			healthzPath,
		}),
		http.WithMount(a.handler.Mount),
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	listeners := []transport.Listener{httpSrv, a.reconciler}
	listeners = append(listeners, a.background...)

	return transport.ServeWithTimeout(ctx, cfg.ShutdownTimeout, listeners...)
}
