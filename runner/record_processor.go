package runner

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/header"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/offsetrepo"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/processor"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// RecordProcessor hands the records of a batch to the application processor
// and decides what may be committed.
type RecordProcessor struct {
	worker            string
	group             string
	processor         processor.Processor
	headers           *header.Propagator
	handler           errorhandler.Handler
	repo              offsetrepo.Repository
	breakOnFirstError bool
	commitTimeout     time.Duration
	logger            logger.Logger
	telemetry         *consumerotel.Telemetry
}

func newRecordProcessor(worker string, cfg Config, proc processor.Processor, l logger.Logger) *RecordProcessor {
	return &RecordProcessor{
		worker:            worker,
		group:             cfg.Client.GroupID,
		processor:         proc,
		headers:           cfg.Headers,
		handler:           cfg.ErrorHandler,
		repo:              cfg.OffsetRepository,
		breakOnFirstError: cfg.BreakOnFirstError,
		commitTimeout:     cfg.CommitTimeout,
		logger:            l,
		telemetry:         cfg.Telemetry,
	}
}

// Process runs batch through the processor in order, starting from previous.
//
// A record whose processor returns an error either breaks the batch (break on
// first error: the marker before it is force committed and the returned result
// has BreakOnErrorHit set) or is reported to the error handler and passed over.
// A record that cannot be turned into a message, or whose processor panics,
// ends the batch with a *ProcessRecordsError. A batch processed to its end is
// committed.
//
// Records are not handed out once ctx is done; what was processed so far is
// returned for the final commit.
func (p *RecordProcessor) Process(
	ctx context.Context, client kafka.Consumer, batch kafka.RecordBatch, previous ProcessResult,
) (ProcessResult, error) {
	result := previous
	// in-flight records finish and commit even while the worker stops
	workCtx := context.WithoutCancel(ctx)

	for _, rec := range batch {
		if ctx.Err() != nil {
			p.logger.Debug("Worker stopping, leaving rest of batch", "offset", rec.Offset, "partition", rec.Partition)
			return result, nil
		}

		err, raised := p.processRecord(workCtx, rec)
		if raised != nil {
			return result, &ProcessRecordsError{Cause: raised, Record: rec}
		}
		if err == nil {
			result = result.advance(rec.Marker)
			continue
		}

		p.logger.Warn(
			"Processor returned error",
			"error", err,
			"topic", rec.Topic,
			"partition", rec.Partition,
			"offset", rec.Offset,
		)

		if p.breakOnFirstError {
			return p.breakAt(workCtx, client, result, rec)
		}

		ec := errorhandler.NewErrorContext(rec, err).
			WithPhase(errorhandler.PhaseProcessing).
			WithWorker(p.worker)
		if herr := p.handler.Handle(workCtx, ec); herr != nil {
			// an unreported failure must not be committed past
			p.logger.Error(
				"Error handler failed, breaking batch",
				"error", herr,
				"partition", rec.Partition,
				"offset", rec.Offset,
			)
			return p.breakAt(workCtx, client, result, rec)
		}

		result = result.advance(rec.Marker)
	}

	if len(batch) == 0 {
		return result, nil
	}

	if err := p.CommitOffset(workCtx, client, result.LastOffsetMarker(), false, false); err != nil {
		return result, err
	}
	return result, nil
}

// breakAt force commits everything before rec so the next session resumes at it.
func (p *RecordProcessor) breakAt(
	ctx context.Context, client kafka.Consumer, result ProcessResult, rec kafka.Record,
) (ProcessResult, error) {
	p.logger.Info("Breaking batch at failing record", "partition", rec.Partition, "offset", rec.Offset)

	if err := p.CommitOffset(ctx, client, result.LastOffsetMarker(), false, true); err != nil {
		return result, err
	}
	return result.broken(), nil
}

// processRecord returns the error the processor returned, or raised when the
// record could not be processed at all.
func (p *RecordProcessor) processRecord(ctx context.Context, rec kafka.Record) (err error, raised error) {
	headers := rec.Headers
	ctx = p.telemetry.Propagator.Extract(ctx, consumerotel.NewRecordHeadersCarrier(&headers))

	ctx, span := p.telemetry.Tracer.Start(
		ctx, rec.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeProcess,
			semconv.MessagingDestinationName(rec.Topic),
			semconv.MessagingDestinationPartitionID(strconv.FormatInt(int64(rec.Partition), 10)),
			semconv.MessagingKafkaOffsetKey.Int64(rec.Offset),
			semconv.MessagingConsumerGroupName(p.group),
			semconv.MessagingMessageBodySize(len(rec.Value)),
		),
	)
	defer span.End()

	start := time.Now()
	status := consumerotel.StatusSuccess
	defer func() {
		p.telemetry.ProcessDuration.Record(
			ctx, time.Since(start).Seconds(), metric.WithAttributes(
				semconv.MessagingDestinationName(rec.Topic),
				consumerotel.AttrWorker.String(p.worker),
				consumerotel.AttrProcessStatus.String(status),
			),
		)
	}()

	msg, hErr := p.message(rec)
	if hErr != nil {
		status = consumerotel.StatusError
		span.RecordError(hErr)
		span.SetStatus(codes.Error, hErr.Error())
		return nil, hErr
	}

	err, raised = p.invoke(ctx, msg)
	switch {
	case raised != nil:
		status = consumerotel.StatusError
		span.RecordError(raised)
		span.SetStatus(codes.Error, raised.Error())
	case err != nil:
		status = consumerotel.StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err, raised
}

func (p *RecordProcessor) invoke(ctx context.Context, msg *processor.Message) (err error, raised error) {
	defer func() {
		if r := recover(); r != nil {
			raised = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return p.processor.Process(ctx, msg), nil
}

func (p *RecordProcessor) message(rec kafka.Record) (*processor.Message, error) {
	headers, err := p.headers.Headers(rec)
	if err != nil {
		return nil, err
	}

	return &processor.Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Timestamp: rec.Timestamp,
		Key:       rec.Key,
		Headers:   headers,
		Body:      rec.Value,
	}, nil
}

// CommitOffset synchronously commits marker, bounded by the commit timeout and
// unaffected by cancellation of ctx. A nil marker is a no-op. stopping marks the
// final commit of a session, force a commit made to recover mid stream; both
// reach the same CommitSync call.
func (p *RecordProcessor) CommitOffset(
	ctx context.Context, client kafka.Consumer, marker kafka.CommitMarker, stopping, force bool,
) error {
	if marker == nil {
		return nil
	}

	reason := consumerotel.CommitNormal
	switch {
	case force:
		reason = consumerotel.CommitForced
	case stopping:
		reason = consumerotel.CommitStopping
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.commitTimeout)
	defer cancel()

	start := time.Now()
	err := client.CommitSync(commitCtx, marker)

	status := consumerotel.StatusSuccess
	if err != nil {
		status = consumerotel.StatusFailed
	}
	attrs := metric.WithAttributes(
		consumerotel.AttrWorker.String(p.worker),
		consumerotel.AttrCommitReason.String(reason),
		consumerotel.AttrCommitStatus.String(status),
	)
	p.telemetry.Commits.Add(commitCtx, 1, attrs)
	p.telemetry.CommitDuration.Record(commitCtx, time.Since(start).Seconds(), attrs)

	if err != nil {
		p.logger.Error("Failed to commit offsets", "error", err, "reason", reason)
		return &CommitError{Reason: reason, Err: err}
	}

	offsets := kafka.OffsetsOf(marker)
	p.logger.Debug("Committed offsets", "reason", reason, "partitions", len(offsets))

	if p.repo != nil && p.repo.Running() {
		if err := p.repo.Store(commitCtx, offsets); err != nil {
			p.logger.Warn("Failed to mirror offsets to repository", "error", err)
		}
	}

	return nil
}
