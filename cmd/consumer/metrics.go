package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// newMetrics builds the engine telemetry on top of tp and exports its
// instruments in the Prometheus format on cfg.MetricsPath. A zero port disables
// the endpoint, the instruments are then recorded but never scraped.
func newMetrics(
	ctx context.Context, cfg config.HTTPConfig, tp trace.TracerProvider, l logger.Logger,
) (*otel.Telemetry, func(), error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	tel, err := otel.NewTelemetry(tp, mp, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create telemetry: %w", err)
	}

	shutdownProvider := func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := mp.Shutdown(sctx); err != nil {
			l.Warn("Failed to shut down meter provider", "error", err)
		}
	}

	if cfg.Port == 0 {
		return tel, shutdownProvider, nil
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info("Metrics server listening", "addr", srv.Addr, "path", cfg.MetricsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Metrics server failed", "error", err)
		}
	}()

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			l.Warn("Failed to shut down metrics server", "error", err)
		}
		shutdownProvider()
	}

	return tel, shutdown, nil
}
