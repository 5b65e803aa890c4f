package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hugolhafner/go-consumer"
	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/processor/builtins"
	"github.com/hugolhafner/go-consumer/runner"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:          "consumer",
		Short:        "Resilient Kafka consumer",
		Version:      consumer.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}
	root.Flags().StringVarP(&cfgFile, "config", "c", "", "path to a YAML config file")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	l, sync, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer sync()

	l.Info(
		"Config loaded",
		"topic", cfg.Topic,
		"pattern", cfg.TopicIsPattern,
		"brokers", cfg.Kafka.Brokers,
		"group", cfg.Kafka.GroupID,
		"consumers", cfg.ConsumersCount,
		"poll_on_error", cfg.PollOnError.String(),
		"consistency", cfg.ConsistencyMode,
	)

	tp, shutdownTracer, err := newTracerProvider(ctx, cfg.Tracing, l)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracer()

	tel, shutdownMetrics, err := newMetrics(ctx, cfg.HTTP, tp, l)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer shutdownMetrics()

	opts, err := cfg.RunnerOptions()
	if err != nil {
		return err
	}

	handler, closeHandler, err := buildErrorHandler(cfg, l, tel)
	if err != nil {
		return fmt.Errorf("create error handler: %w", err)
	}
	defer closeHandler()

	opts = append(opts, runner.WithErrorHandler(handler), runner.WithTelemetry(tel))
	if repo := buildRepository(cfg, l); repo != nil {
		opts = append(opts, runner.WithOffsetRepository(repo))
	}

	procLevel, _ := logger.ParseLogLevel(cfg.Processor.LogLevel)

	app, err := consumer.NewApplication(
		cfg.Topic,
		kafka.NewKgoFactory(kafka.WithLogger(l)),
		builtins.NewLogProcessor(l.With("component", "processor"), procLevel, cfg.Processor.LogBody),
		consumer.WithLogger(l),
		consumer.WithStopTimeout(cfg.StopTimeout),
		consumer.WithRunnerOptions(opts...),
	)
	if err != nil {
		return err
	}

	err = app.Run(ctx)
	switch {
	case errors.Is(err, consumer.ErrWorkersExited):
		l.Warn("All workers exited, shutting down")
		return err
	case err != nil:
		l.Error("Application failed", "error", err)
		return err
	}

	l.Info("Shutdown complete")
	return nil
}
