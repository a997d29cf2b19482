package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	defaultVisibilityInterval = time.Second
	defaultVisibilityTimeout  = 30 * time.Second
)

// SchemaHandle describes a schema as the control plane reports it.
type SchemaHandle struct {
	Name            string
	UID             string
	ResourceVersion string
	// Established is true once the kind can be listed and watched.
	Established bool
}

// SchemaClient creates and fetches kind schemas. Implementations
// return a DomainError with ErrorCodeAlreadyExists or
// ErrorCodeNotFound for the two expected conflicts.
type SchemaClient interface {
	Create(ctx context.Context, def *KindDefinition) (*SchemaHandle, error)
	Get(ctx context.Context, name string) (*SchemaHandle, error)
}

// RegistrarConfig bounds the visibility poll after a create.
type RegistrarConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// SchemaRegistrar makes sure a kind's schema exists before it is
// watched.
type SchemaRegistrar struct {
	client   SchemaClient
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewSchemaRegistrar(client SchemaClient, cfg RegistrarConfig) *SchemaRegistrar {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultVisibilityInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultVisibilityTimeout
	}
	return &SchemaRegistrar{
		client:   client,
		interval: cfg.PollInterval,
		timeout:  cfg.Timeout,
		log:      slog.Default().With("component", "schema-registrar"),
	}
}

// EnsureRegistered creates the schema, or returns the existing one when
// the control plane reports a conflict. A freshly created schema is
// polled until established, at most for the configured timeout.
func (r *SchemaRegistrar) EnsureRegistered(ctx context.Context, def *KindDefinition) (*SchemaHandle, error) {
	handle, err := r.client.Create(ctx, def)
	switch {
	case err == nil:
		r.log.Info("created schema", "name", def.Name)
		if handle != nil && handle.Established {
			return handle, nil
		}
		return r.awaitVisible(ctx, def.Name)

	case IsAlreadyExists(err):
		existing, err := r.client.Get(ctx, def.Name)
		if IsNotFound(err) {
			return nil, fmt.Errorf("schema %s: %w", def.Name, ErrSchemaVanished)
		}
		if err != nil {
			return nil, fmt.Errorf("get existing schema %s: %w", def.Name, err)
		}
		r.log.Debug("schema already registered", "name", def.Name, "established", existing.Established)
		return existing, nil

	default:
		return nil, fmt.Errorf("create schema %s: %w", def.Name, err)
	}
}

// awaitVisible polls until the schema is established. Errors while
// polling are retried until the timeout since registration may still
// be propagating.
func (r *SchemaRegistrar) awaitVisible(ctx context.Context, name string) (*SchemaHandle, error) {
	var (
		handle  *SchemaHandle
		lastErr error
	)

	err := wait.PollUntilContextTimeout(ctx, r.interval, r.timeout, true,
		func(ctx context.Context) (bool, error) {
			h, err := r.client.Get(ctx, name)
			if err != nil {
				lastErr = err
				return false, nil
			}
			handle = h
			return h.Established, nil
		},
	)
	if err != nil {
		if lastErr != nil && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("schema %s not visible after %s: %w", name, r.timeout, errors.Join(err, lastErr))
		}
		return nil, fmt.Errorf("schema %s not visible after %s: %w", name, r.timeout, err)
	}

	r.log.Info("schema established", "name", name)
	return handle, nil
}
