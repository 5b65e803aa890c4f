package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-consumer"

// Telemetry holds all OpenTelemetry instruments of the consumer engine
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Poll metrics
	MessagesConsumed metric.Int64Counter
	PollDuration     metric.Float64Histogram

	// Processing metrics
	ProcessDuration metric.Float64Histogram

	// Commit metrics
	Commits        metric.Int64Counter
	CommitDuration metric.Float64Histogram

	// Dead letter metrics
	MessagesProduced metric.Int64Counter

	// Error metrics
	Errors          metric.Int64Counter
	StrategyActions metric.Int64Counter

	// Worker state metrics
	Reconnects    metric.Int64Counter
	WorkersActive metric.Int64UpDownCounter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	meter := mp.Meter(scopeName)
	tel := &Telemetry{
		Tracer:     tp.Tracer(scopeName),
		Propagator: prop,
	}

	var err error
	if tel.MessagesConsumed, err = meter.Int64Counter(
		"messaging.consumer.messages",
		metric.WithDescription("Records returned by Poll()"),
	); err != nil {
		return nil, err
	}

	if tel.PollDuration, err = meter.Float64Histogram(
		"consumer.poll.duration",
		metric.WithDescription("Time per Poll() call"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if tel.ProcessDuration, err = meter.Float64Histogram(
		"consumer.process.duration",
		metric.WithDescription("Time spent in the application processor per record"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if tel.Commits, err = meter.Int64Counter(
		"consumer.commits",
		metric.WithDescription("Synchronous offset commits"),
	); err != nil {
		return nil, err
	}

	if tel.CommitDuration, err = meter.Float64Histogram(
		"consumer.commit.duration",
		metric.WithDescription("Time per CommitSync() call"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if tel.MessagesProduced, err = meter.Int64Counter(
		"messaging.producer.messages",
		metric.WithDescription("Records published to a dead letter topic"),
	); err != nil {
		return nil, err
	}

	if tel.Errors, err = meter.Int64Counter(
		"consumer.errors",
		metric.WithDescription("Errors encountered by workers"),
	); err != nil {
		return nil, err
	}

	if tel.StrategyActions, err = meter.Int64Counter(
		"consumer.poll_error.actions",
		metric.WithDescription("Poll error strategy decisions"),
	); err != nil {
		return nil, err
	}

	if tel.Reconnects, err = meter.Int64Counter(
		"consumer.reconnects",
		metric.WithDescription("Clients created after the first one"),
	); err != nil {
		return nil, err
	}

	if tel.WorkersActive, err = meter.Int64UpDownCounter(
		"consumer.workers.active",
		metric.WithDescription("Running consumer workers"),
	); err != nil {
		return nil, err
	}

	return tel, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
