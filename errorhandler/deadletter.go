package errorhandler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Headers added to dead lettered records
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderErrorTimestamp    = "x-error-timestamp"
	HeaderErrorAttempt      = "x-error-attempt"
	HeaderErrorPhase        = "x-error-phase"
	HeaderErrorMessage      = "x-error-message"
	HeaderErrorWorker       = "x-error-worker"
)

var ErrNoRecord = errors.New("errorhandler: no record to dead letter")

type deadLetterConfig struct {
	logger    logger.Logger
	telemetry *consumerotel.Telemetry
	now       func() time.Time
}

type DeadLetterOption func(*deadLetterConfig)

func WithDeadLetterLogger(l logger.Logger) DeadLetterOption {
	return func(c *deadLetterConfig) {
		c.logger = l
	}
}

func WithDeadLetterTelemetry(t *consumerotel.Telemetry) DeadLetterOption {
	return func(c *deadLetterConfig) {
		if t != nil {
			c.telemetry = t
		}
	}
}

// DeadLetter publishes the failing record unchanged to topic, adding headers
// that describe where it came from and why it failed. Errors without a record
// are rejected with ErrNoRecord; wrap the handler in OnlyWithRecord to drop
// them instead.
func DeadLetter(producer kafka.Producer, topic string, opts ...DeadLetterOption) Handler {
	cfg := deadLetterConfig{
		logger:    logger.NewNoopLogger(),
		telemetry: consumerotel.Noop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) error {
			if !ec.HasRecord() {
				return ErrNoRecord
			}

			if err := producer.Send(
				ctx, topic, ec.Record.Key, ec.Record.Value, deadLetterHeaders(ec, cfg.now()),
			); err != nil {
				cfg.logger.Error(
					"Failed to send record to dead letter topic",
					"error", err,
					"dead_letter_topic", topic,
					"original_topic", ec.Record.Topic,
					"original_partition", ec.Record.Partition,
					"original_offset", ec.Record.Offset,
				)
				return err
			}

			cfg.telemetry.MessagesProduced.Add(
				ctx, 1, metric.WithAttributes(
					semconv.MessagingDestinationName(topic),
					consumerotel.AttrErrorPhase.String(ec.Phase.String()),
				),
			)
			cfg.logger.Debug(
				"Sent record to dead letter topic",
				"dead_letter_topic", topic,
				"original_topic", ec.Record.Topic,
				"original_offset", ec.Record.Offset,
			)
			return nil
		},
	)
}

func deadLetterHeaders(ec ErrorContext, now time.Time) []kafka.Header {
	record := ec.Record.Copy()

	headers := make([]kafka.Header, len(record.Headers), len(record.Headers)+8)
	copy(headers, record.Headers)

	headers = append(
		headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(record.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.FormatInt(int64(record.Partition), 10))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(record.Offset, 10))},
		kafka.Header{Key: HeaderErrorTimestamp, Value: []byte(now.Format(time.RFC3339))},
		kafka.Header{Key: HeaderErrorAttempt, Value: []byte(strconv.Itoa(ec.Attempt))},
		kafka.Header{Key: HeaderErrorPhase, Value: []byte(ec.Phase.String())},
	)

	if ec.Error != nil {
		headers = append(headers, kafka.Header{Key: HeaderErrorMessage, Value: []byte(ec.Error.Error())})
	}
	if ec.Worker != "" {
		headers = append(headers, kafka.Header{Key: HeaderErrorWorker, Value: []byte(ec.Worker)})
	}

	return headers
}
