package core

import (
	"context"
	"fmt"
	"sort"
)

// Handler converges one kind of resource. Implementations must be
// idempotent per resource key: the same call may be repeated after a
// reconnect.
type Handler interface {
	Create(ctx context.Context, resource *Resource) Outcome
	Update(ctx context.Context, resource *Resource) Outcome
	Delete(ctx context.Context, resource *Resource) Outcome
}

// SpecHandler is a Handler that receives the spec already decoded
// into T.
type SpecHandler[T any] interface {
	Create(ctx context.Context, resource *Resource, spec T) Outcome
	Update(ctx context.Context, resource *Resource, spec T) Outcome
	Delete(ctx context.Context, resource *Resource, spec T) Outcome
}

// Typed adapts a SpecHandler to a Handler. A spec that does not decode
// into T fails convergence without reaching h.
func Typed[T any](h SpecHandler[T]) Handler {
	return typedHandler[T]{h: h}
}

type typedHandler[T any] struct {
	h SpecHandler[T]
}

func (t typedHandler[T]) Create(ctx context.Context, r *Resource) Outcome {
	spec, err := DecodeSpec[T](r)
	if err != nil {
		return Failed{Reason: err.Error()}
	}
	return t.h.Create(ctx, r, spec)
}

func (t typedHandler[T]) Update(ctx context.Context, r *Resource) Outcome {
	spec, err := DecodeSpec[T](r)
	if err != nil {
		return Failed{Reason: err.Error()}
	}
	return t.h.Update(ctx, r, spec)
}

func (t typedHandler[T]) Delete(ctx context.Context, r *Resource) Outcome {
	spec, err := DecodeSpec[T](r)
	if err != nil {
		return Failed{Reason: err.Error()}
	}
	return t.h.Delete(ctx, r, spec)
}

// KindSupport pairs a kind definition with the handler converging it.
type KindSupport struct {
	Definition *KindDefinition
	Handler    Handler
}

// Plugin supplies the kinds it manages.
type Plugin interface {
	Name() string
	SupportedKinds() ([]KindSupport, error)
}

// Registration is one row of the Registry.
type Registration struct {
	Plugin     string
	Definition *KindDefinition
	Handler    Handler
}

// Registry is the kind → handler table built once at startup.
type Registry struct {
	entries map[string]Registration
}

// NewRegistry collects the kinds of every plugin. A kind claimed by
// two plugins is an error.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{entries: make(map[string]Registration)}

	for _, p := range plugins {
		kinds, err := p.SupportedKinds()
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		for _, k := range kinds {
			if err := r.Register(p.Name(), k); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

// Register adds a single kind.
func (r *Registry) Register(plugin string, k KindSupport) error {
	if k.Definition == nil || k.Handler == nil {
		return fmt.Errorf("plugin %s: kind support needs a definition and a handler", plugin)
	}

	key := k.Definition.Kind.Key()
	if existing, ok := r.entries[key]; ok {
		return fmt.Errorf("kind %s registered by both %s and %s", key, existing.Plugin, plugin)
	}

	r.entries[key] = Registration{
		Plugin:     plugin,
		Definition: k.Definition,
		Handler:    k.Handler,
	}
	return nil
}

// Lookup returns the registration for a kind.
func (r *Registry) Lookup(kind ResourceKind) (Registration, bool) {
	return r.LookupKey(kind.Key())
}

// LookupKey is Lookup by the kind's key, as reported in statuses.
func (r *Registry) LookupKey(key string) (Registration, bool) {
	reg, ok := r.entries[key]
	return reg, ok
}

// Registrations returns all entries ordered by kind key.
func (r *Registry) Registrations() []Registration {
	out := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Definition.Kind.Key() < out[j].Definition.Kind.Key()
	})
	return out
}

func (r *Registry) Len() int {
	return len(r.entries)
}
