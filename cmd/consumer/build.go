package main

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/offsetrepo"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/plugins/zaplogger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	deadLetterRetryDelay   = 200 * time.Millisecond
	deadLetterFlushTimeout = 5 * time.Second
)

func newLogger(cfg config.LoggingConfig) (logger.Logger, func(), error) {
	level, err := logger.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.DevMode {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))

	zl, err := zcfg.Build()
	if err != nil {
		return nil, nil, err
	}

	return zaplogger.New(zl), func() { _ = zl.Sync() }, nil
}

func toZapLevel(level logger.LogLevel) zapcore.Level {
	switch level {
	case logger.DebugLevel:
		return zapcore.DebugLevel
	case logger.WarnLevel:
		return zapcore.WarnLevel
	case logger.ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildErrorHandler logs every error, and additionally dead letters failing
// records when enabled. The returned func releases the producer.
func buildErrorHandler(cfg *config.Config, l logger.Logger, tel *otel.Telemetry) (errorhandler.Handler, func(), error) {
	logHandler := errorhandler.LogAndContinue(l.With("component", "errorhandler"))
	if !cfg.DeadLetter.Enabled {
		return logHandler, func() {}, nil
	}

	producer, err := kafka.NewKgoProducer(cfg.Kafka.Brokers, kafka.WithLogger(l))
	if err != nil {
		return nil, nil, err
	}

	deadLetter := errorhandler.WithMaxAttempts(
		cfg.DeadLetter.MaxAttempts,
		backoff.NewFixed(deadLetterRetryDelay),
		errorhandler.DeadLetter(
			producer, cfg.DeadLetter.Topic,
			errorhandler.WithDeadLetterLogger(l),
			errorhandler.WithDeadLetterTelemetry(tel),
		),
	)

	handler := errorhandler.Multi(logHandler, errorhandler.OnlyWithRecord(deadLetter))

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), deadLetterFlushTimeout)
		defer cancel()
		if err := producer.Flush(ctx); err != nil {
			l.Warn("Failed to flush dead letter producer", "error", err)
		}
		producer.Close()
	}

	return handler, closeFn, nil
}

// buildRepository returns nil when positions are not mirrored anywhere.
func buildRepository(cfg *config.Config, l logger.Logger) offsetrepo.Repository {
	switch cfg.OffsetRepository.Type {
	case "memory":
		return offsetrepo.NewMemory()
	case "redis":
		rc := cfg.OffsetRepository.Redis
		prefix := rc.KeyPrefix
		if prefix == "" {
			prefix = cfg.Kafka.GroupID
		}
		return offsetrepo.NewRedis(
			offsetrepo.RedisConfig{
				Addr:      rc.Addr,
				Password:  rc.Password,
				DB:        rc.DB,
				KeyPrefix: prefix,
			}, l,
		)
	default:
		return nil
	}
}
