package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/processor"
	"go.opentelemetry.io/otel/metric"
)

// WorkerID identifies one of the workers a supervisor runs for a topic.
type WorkerID struct {
	Topic   string
	Pattern bool
	Index   int
}

func (id WorkerID) String() string {
	return id.Topic + "#" + strconv.Itoa(id.Index)
}

// Worker owns one client and runs the poll, process and commit loop on it.
// After any failure that is not handled in place the client is closed and a
// new one is created through the factory.
type Worker struct {
	id      WorkerID
	cfg     Config
	mode    kafka.ConsistencyMode
	factory kafka.Factory
	records *RecordProcessor
	logger  logger.Logger

	// session serializes poll, process and commit against stop; a buffered
	// channel so stop can give up after the shutdown timeout
	session chan struct{}

	mu      sync.Mutex
	client  kafka.Consumer
	state   State
	cancel  context.CancelFunc
	clients int

	stopRequested atomic.Bool
	doneCh        chan struct{}
	doneOnce      sync.Once

	// failure tracks consecutive failures of the same record for Attempt
	failure     string
	failures    int
	errorStreak uint
}

// NewWorker creates a worker. It fails when the configured consistency mode is
// not recognized.
func NewWorker(id WorkerID, cfg Config, factory kafka.Factory, proc processor.Processor) (*Worker, error) {
	mode, err := kafka.ParseConsistencyMode(cfg.ConsistencyMode)
	if err != nil {
		return nil, fmt.Errorf("worker %s: %w", id, err)
	}
	if !cfg.PollOnError.Valid() {
		return nil, fmt.Errorf("worker %s: %w: %d", id, ErrInvalidStrategy, int(cfg.PollOnError))
	}

	cfg.Client.Topic = id.Topic
	cfg.Client.TopicIsPattern = id.Pattern
	// static members of one group must not share an instance id
	if cfg.Client.GroupInstanceID != "" {
		cfg.Client.GroupInstanceID += "-" + strconv.Itoa(id.Index)
	}

	l := cfg.Logger.With("component", "worker", "topic", id.Topic, "worker", id.Index)

	return &Worker{
		id:      id,
		cfg:     cfg,
		mode:    mode,
		factory: factory,
		records: newRecordProcessor(id.String(), cfg, proc, l),
		logger:  l,
		session: make(chan struct{}, 1),
		state:   StateDisconnected,
		doneCh:  make(chan struct{}),
	}, nil
}

func (w *Worker) ID() WorkerID {
	return w.id
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state
}

func (w *Worker) setState(next func(State) State) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.state
	w.state = next(prev)
	if prev != w.state {
		w.logger.Debug("Worker state changed", "from", prev.String(), "to", w.state.String())
	}
	return w.state
}

// Done is closed once Run returned.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

// WaitForStop blocks until Run returned or timeout elapsed.
func (w *Worker) WaitForStop(timeout time.Duration) bool {
	select {
	case <-w.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *Worker) currentClient() kafka.Consumer {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.client
}

func (w *Worker) stopping(ctx context.Context) bool {
	return w.stopRequested.Load() || ctx.Err() != nil
}

func (w *Worker) runnable(ctx context.Context) bool {
	return !w.stopping(ctx) && w.State() != StateStopped
}

func (w *Worker) continuePolling(ctx context.Context) bool {
	s := w.State()
	return (s == StatePolling || s == StateReconnectRequested) && w.runnable(ctx)
}

// Run polls until the worker is stopped, ctx is cancelled or the stop
// strategy ends it. It always returns nil; a stopped worker is not an error
// for the other workers of the pool.
func (w *Worker) Run(ctx context.Context) error {
	defer w.doneOnce.Do(func() { close(w.doneCh) })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	if w.stopRequested.Load() {
		cancel()
	}

	attrs := metric.WithAttributes(consumerotel.AttrWorker.String(w.id.String()))
	w.cfg.Telemetry.WorkersActive.Add(ctx, 1, attrs)
	defer w.cfg.Telemetry.WorkersActive.Add(context.WithoutCancel(ctx), -1, attrs)

	w.logger.Info("Worker started", "consistency", w.mode.String(), "strategy", w.cfg.PollOnError.String())
	defer w.closeClient()

	attempt := uint(0)
	for w.runnable(ctx) {
		if w.currentClient() == nil {
			if err := w.connect(ctx); err != nil {
				attempt++
				w.setState(State.disconnectedState)
				w.logger.Error("Failed to create client", "error", err, "attempt", attempt)
				w.sleep(ctx, w.cfg.ReconnectBackoff.Next(attempt))
				continue
			}
			attempt = 0
		}

		delay := w.pollSession(ctx)

		if w.continuePolling(ctx) {
			if w.currentClient() == nil {
				w.sleep(ctx, w.cfg.ReconnectBackoff.Next(1))
			} else if delay > 0 {
				w.sleep(ctx, delay)
			}
		}
	}

	w.setState(State.onStop)
	w.logger.Info("Worker exited")
	return nil
}

func (w *Worker) connect(ctx context.Context) error {
	client, err := w.factory(ctx, w.cfg.Client, w.mode)
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("factory returned no client")
	}

	w.mu.Lock()
	w.client = client
	w.state = w.state.connectedState()
	w.clients++
	reconnect := w.clients > 1
	w.mu.Unlock()

	if reconnect {
		w.cfg.Telemetry.Reconnects.Add(
			ctx, 1, metric.WithAttributes(consumerotel.AttrWorker.String(w.id.String())),
		)
	}
	w.logger.Info("Client created", "reconnect", reconnect)
	return nil
}

func (w *Worker) closeClient() {
	w.mu.Lock()
	client := w.client
	w.client = nil
	w.mu.Unlock()

	if client != nil {
		client.Close()
		w.logger.Debug("Client closed")
	}
}

// sleep waits for d unless the worker is stopped first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// pollSession polls and processes batches while the worker stays in
// StatePolling. It returns how long to wait before the next session when an
// error was handled in place.
func (w *Worker) pollSession(ctx context.Context) time.Duration {
	w.session <- struct{}{}
	defer func() {
		<-w.session
		if w.State() != StatePolling {
			w.closeClient()
		}
	}()

	client := w.currentClient()
	if client == nil {
		return 0
	}

	last, hasResult := NewUnprocessed(), false
	var err error

	for w.runnable(ctx) && w.State() == StatePolling {
		var batch kafka.RecordBatch
		if batch, err = w.poll(ctx, client); err != nil {
			break
		}

		last, err = w.records.Process(ctx, client, batch, last)
		hasResult = true
		if err != nil {
			break
		}

		if last.BreakOnErrorHit() {
			w.setState(State.onBreak)
			continue
		}
		if len(batch) > 0 {
			w.resetFailures()
		}
	}

	if err != nil && w.isStopSignal(ctx, err) {
		w.logger.Debug("Poll interrupted, stopping", "reason", err)
		w.setState(State.onStop)
		err = nil
	}

	if err == nil {
		if hasResult && (w.State() != StatePolling || w.stopping(ctx)) {
			if cErr := w.records.CommitOffset(ctx, client, last.LastOffsetMarker(), true, false); cErr != nil {
				if w.stopping(ctx) || w.State() == StateStopped {
					w.logger.Warn("Final commit failed while stopping", "error", cErr)
					return 0
				}
				err = cErr
			}
		}
	}

	if err == nil {
		return 0
	}

	return w.handlePollError(ctx, client, err, last)
}

func (w *Worker) poll(ctx context.Context, client kafka.Consumer) (kafka.RecordBatch, error) {
	start := time.Now()
	batch, err := client.Poll(ctx, w.cfg.PollTimeout)

	status := consumerotel.StatusSuccess
	if err != nil {
		status = consumerotel.StatusError
	}
	w.cfg.Telemetry.PollDuration.Record(
		context.WithoutCancel(ctx), time.Since(start).Seconds(), metric.WithAttributes(
			consumerotel.AttrWorker.String(w.id.String()),
			consumerotel.AttrPollStatus.String(status),
		),
	)

	if err != nil {
		return nil, &PollError{Err: err}
	}

	if len(batch) > 0 {
		w.cfg.Telemetry.MessagesConsumed.Add(
			ctx, int64(len(batch)), metric.WithAttributes(consumerotel.AttrWorker.String(w.id.String())),
		)
		w.logger.Debug("Polled records", "count", len(batch))
	}
	return batch, nil
}

// isStopSignal reports whether err only reflects the worker being stopped.
func (w *Worker) isStopSignal(ctx context.Context, err error) bool {
	if errors.Is(err, kafka.ErrWakeup) {
		return true
	}
	if !w.stopping(ctx) {
		return false
	}

	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, kafka.ErrClientClosed)
}

// handlePollError applies the poll error strategy to a session error and
// returns the delay before polling again in place.
func (w *Worker) handlePollError(
	ctx context.Context, client kafka.Consumer, err error, last ProcessResult,
) time.Duration {
	strategy := w.cfg.PollOnError
	pErr, hasRecord := AsProcessRecordsError(err)
	ec := w.errorContext(err, pErr)

	// records processed before the failing one are done whatever the strategy
	if hasRecord {
		if cErr := w.records.CommitOffset(ctx, client, last.LastOffsetMarker(), false, true); cErr != nil {
			w.logger.Warn("Failed to commit progress before failing record", "error", cErr)
		}
	}

	fields := []any{"error", err, "strategy", strategy.String(), "phase", ec.Phase.String(), "attempt", ec.Attempt}
	if hasRecord {
		fields = append(fields, "partition", pErr.Record.Partition, "offset", pErr.Record.Offset)
	}
	w.logger.Error("Session failed", fields...)

	w.cfg.Telemetry.Errors.Add(
		context.WithoutCancel(ctx), 1, metric.WithAttributes(
			consumerotel.AttrWorker.String(w.id.String()),
			consumerotel.AttrErrorPhase.String(ec.Phase.String()),
		),
	)
	w.cfg.Telemetry.StrategyActions.Add(
		context.WithoutCancel(ctx), 1, metric.WithAttributes(
			consumerotel.AttrWorker.String(w.id.String()),
			consumerotel.AttrStrategy.String(strategy.String()),
		),
	)

	if strategy == StrategyErrorHandler {
		if hErr := w.cfg.ErrorHandler.Handle(context.WithoutCancel(ctx), ec); hErr != nil {
			w.logger.Error("Error handler failed, reconnecting instead of skipping", "error", hErr)
			w.setState(State.onEscalation)
			return 0
		}
	}

	state := w.setState(
		func(s State) State {
			return s.onStrategy(strategy)
		},
	)
	if state != StatePolling {
		return 0
	}

	var recoverErr error
	switch {
	case strategy.skips():
		recoverErr = w.skip(ctx, client, pErr)
	default:
		recoverErr = w.rewind(ctx, client, hasRecord)
	}

	switch {
	case errors.Is(recoverErr, errCannotRewind):
		w.logger.Info("Client cannot rewind, reconnecting to resume from committed position")
		w.setState(State.onEscalation)
		return 0
	case recoverErr != nil:
		w.logger.Error("Failed to recover position in place, reconnecting", "error", recoverErr)
		w.setState(State.onEscalation)
		return 0
	}

	w.errorStreak++
	return w.cfg.PollErrorBackoff.Next(w.errorStreak)
}

// skip commits past the failing record, when known, and moves the client back
// to the committed position so records fetched after it are polled again.
func (w *Worker) skip(ctx context.Context, client kafka.Consumer, pErr *ProcessRecordsError) error {
	if pErr != nil && pErr.Record.Marker != nil {
		if err := w.records.CommitOffset(ctx, client, pErr.Record.Marker, false, true); err != nil {
			return err
		}
		w.logger.Info(
			"Skipped failing record",
			"partition", pErr.Record.Partition,
			"offset", pErr.Record.Offset,
		)
	}

	return w.rewind(ctx, client, pErr != nil)
}

// rewind moves the client back to the committed position. delivered reports
// whether the failed session handed out records past that position; without
// a Rewinder those can only be recovered by a new client.
func (w *Worker) rewind(ctx context.Context, client kafka.Consumer, delivered bool) error {
	r, ok := client.(kafka.Rewinder)
	if !ok {
		if delivered {
			return errCannotRewind
		}
		return nil
	}

	rewindCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.CommitTimeout)
	defer cancel()

	if err := r.RewindToCommitted(rewindCtx); err != nil {
		return fmt.Errorf("rewind to committed: %w", err)
	}
	return nil
}

func (w *Worker) errorContext(err error, pErr *ProcessRecordsError) errorhandler.ErrorContext {
	key := ""
	ec := errorhandler.ErrorContext{Error: err}
	if pErr != nil {
		ec = errorhandler.NewErrorContext(pErr.Record, pErr.Cause)
		key = pErr.Record.TopicPartition().String() + "@" + strconv.FormatInt(pErr.Record.Offset, 10)
	}

	if key != "" && key == w.failure {
		w.failures++
	} else {
		w.failure = key
		w.failures = 1
	}

	return ec.
		WithAttempt(w.failures).
		WithPhase(phaseOf(err)).
		WithWorker(w.id.String())
}

func (w *Worker) resetFailures() {
	w.failure = ""
	w.failures = 0
	w.errorStreak = 0
}

// Stop requests the worker to stop and interrupts a blocked poll. It does not
// wait for Run to return; use Done or WaitForStop.
func (w *Worker) Stop() {
	w.safeStop(w.cfg.ShutdownTimeout)
}

// Shutdown is the forced variant of Stop used once the graceful wait expired.
// It wakes the client up without waiting for the session lock.
func (w *Worker) Shutdown() {
	w.logger.Warn("Forcing worker shutdown")
	w.safeStop(0)
}

// safeStop marks the worker stopped, cancels its run context, and wakes the
// client up. The session lock is taken for up to lockTimeout so a wakeup does
// not race a session that is committing; the client is woken up either way.
func (w *Worker) safeStop(lockTimeout time.Duration) {
	w.stopRequested.Store(true)

	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	acquired := w.tryLockSession(lockTimeout)
	if !acquired && lockTimeout > 0 {
		w.logger.Warn("Session still active after shutdown timeout, waking client anyway")
	}

	if client := w.currentClient(); client != nil {
		client.Wakeup()
	}

	if acquired {
		<-w.session
	}
}

func (w *Worker) tryLockSession(timeout time.Duration) bool {
	select {
	case w.session <- struct{}{}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case w.session <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}
