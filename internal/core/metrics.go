package core

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/otterscale/resource-adapter/internal/core"

// reconcileMetrics holds the instruments shared by all loops. The
// global meter provider delegates, so instruments created before the
// exporter is installed still report once it is.
type reconcileMetrics struct {
	convergences metric.Int64Counter
	reconnects   metric.Int64Counter
	loopsRunning metric.Int64UpDownCounter
}

func newReconcileMetrics() *reconcileMetrics {
	m, err := buildReconcileMetrics(otel.Meter(meterName))
	if err != nil {
		slog.Warn("metrics disabled", "error", err)
		m, _ = buildReconcileMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return m
}

func buildReconcileMetrics(meter metric.Meter) (*reconcileMetrics, error) {
	convergences, err := meter.Int64Counter("adapter.convergence.total",
		metric.WithDescription("Convergence attempts by kind, event type and outcome"))
	if err != nil {
		return nil, err
	}

	reconnects, err := meter.Int64Counter("adapter.watch.reconnects",
		metric.WithDescription("Watch reconnects after transient errors"))
	if err != nil {
		return nil, err
	}

	loopsRunning, err := meter.Int64UpDownCounter("adapter.watch.loops",
		metric.WithDescription("Watch loops currently running"))
	if err != nil {
		return nil, err
	}

	return &reconcileMetrics{
		convergences: convergences,
		reconnects:   reconnects,
		loopsRunning: loopsRunning,
	}, nil
}

func (m *reconcileMetrics) convergence(ctx context.Context, kind ResourceKind, eventType WatchEventType, outcome Outcome) {
	m.convergences.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("kind", kind.Key()),
		attribute.String("event", string(eventType)),
		attribute.String("outcome", outcomeLabel(outcome)),
	))
}

func (m *reconcileMetrics) reconnect(ctx context.Context, kind ResourceKind, reason string) {
	m.reconnects.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("kind", kind.Key()),
		attribute.String("reason", reason),
	))
}

func (m *reconcileMetrics) loopStarted(kind ResourceKind) {
	m.loopsRunning.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind.Key())))
}

func (m *reconcileMetrics) loopStopped(kind ResourceKind) {
	m.loopsRunning.Add(context.Background(), -1, metric.WithAttributes(attribute.String("kind", kind.Key())))
}
