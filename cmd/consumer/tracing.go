package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hugolhafner/go-consumer"
	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/logger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerShutdownTimeout = 5 * time.Second

// newTracerProvider returns a nil provider when no collector is configured, in
// which case the telemetry falls back to a noop tracer.
func newTracerProvider(ctx context.Context, cfg config.TracingConfig, l logger.Logger) (
	trace.TracerProvider, func(), error,
) {
	if cfg.OTLPEndpoint == "" {
		return nil, func() {}, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithReconnectionPeriod(5 * time.Second),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(initCtx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(consumer.Version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	l.Info("Tracer initialized", "endpoint", cfg.OTLPEndpoint, "service", cfg.ServiceName)

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tracerShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			l.Warn("Failed to shut down tracer provider", "error", err)
		}
	}

	return tp, shutdown, nil
}
