//go:build unit

package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	mocklogger "github.com/hugolhafner/go-consumer/logger/mock"
	"github.com/hugolhafner/go-consumer/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_AllSuccessCommitsLastRecord(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3", "k4", "v4")...)

	proc := newRecordingProcessor(nil)
	w := startWorker(t, testConfig(), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 4), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{0, 1, 2, 3}, proc.Seen())
	require.Equal(t, StatePolling, w.State())
	require.Len(t, broker.Consumers(), 1)
}

func TestWorker_BreakOnFirstErrorResumesAtFailingRecord(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3", "k4", "v4")...)

	// record 2 keeps failing
	proc := newRecordingProcessor(failAt(2, 1000))
	startWorker(t, testConfig(WithBreakOnFirstError(true)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 2), 2*time.Second, 5*time.Millisecond)
	require.Eventually(
		t, func() bool {
			return len(broker.Consumers()) >= 2 && proc.Count(2) >= 2
		}, 2*time.Second, 5*time.Millisecond,
	)

	require.Equal(t, int64(2), maxCommitted(broker, 0), "commit moved past the failing record")
	require.Zero(t, proc.Count(3), "records after the failing one were processed")
	require.True(t, broker.Consumers()[0].IsClosed())
}

func TestWorker_BreakOnFirstErrorRedeliversUntilSuccess(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	proc := newRecordingProcessor(failAt(1, 1))
	startWorker(t, testConfig(WithBreakOnFirstError(true), WithPollOnError(StrategyDiscard)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 3), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 2, proc.Count(1))
	require.Equal(t, 1, proc.Count(0))
	require.Equal(t, 1, proc.Count(2))
	require.GreaterOrEqual(t, len(broker.Consumers()), 2, "break must reconnect")
}

func TestWorker_SkippingStrategiesCommitPastRaisedRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy PollErrorStrategy
		reported int
	}{
		{name: "discard", strategy: StrategyDiscard, reported: 0},
		{name: "error handler", strategy: StrategyErrorHandler, reported: 1},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				broker := mockkafka.NewBroker()
				broker.AddRecords(
					testTopic, 0,
					mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3", "k4", "v4", "k5", "v5")...,
				)

				handler := &recordingHandler{}
				proc := newRecordingProcessor(panicAt(2, 1000))
				startWorker(
					t, testConfig(WithPollOnError(tt.strategy), WithErrorHandler(handler)), broker, proc,
				)

				require.Eventually(t, committedAt(broker, 0, 5), 2*time.Second, 5*time.Millisecond)

				require.Equal(t, 1, proc.Count(2), "skipped record was redelivered")
				require.Equal(t, []int64{0, 1, 2, 3, 4}, proc.Seen())

				consumers := broker.Consumers()
				require.Len(t, consumers, 1)
				require.False(t, consumers[0].IsClosed())
				require.GreaterOrEqual(t, consumers[0].RewindCount(), 1)

				reports := handler.Reports()
				require.Len(t, reports, tt.reported)
				for _, r := range reports {
					require.Equal(t, int64(2), r.Record.Offset)
					require.Equal(t, errorhandler.PhaseProcessing, r.Phase)
					require.Equal(t, "orders#0", r.Worker)

					var panicErr *PanicError
					require.ErrorAs(t, r.Error, &panicErr)
				}
			},
		)
	}
}

func TestWorker_HeaderDeserializationErrorIsSkipped(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(
		testTopic, 0,
		mockkafka.SimpleRecord("k1", "v1"),
		mockkafka.Record("k2", "v2").WithHeader("bad", []byte("x")).Build(),
		mockkafka.SimpleRecord("k3", "v3"),
	)

	handler := &recordingHandler{}
	proc := newRecordingProcessor(nil)
	startWorker(
		t, testConfig(
			WithPollOnError(StrategyErrorHandler),
			WithErrorHandler(handler),
			WithHeaderPropagator(failingHeaders()),
		), broker, proc,
	)

	require.Eventually(t, committedAt(broker, 0, 3), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{0, 2}, proc.Seen())

	reports := handler.Reports()
	require.Len(t, reports, 1)
	require.Equal(t, int64(1), reports[0].Record.Offset)
	require.Equal(t, errorhandler.PhaseSerde, reports[0].Phase)
}

func TestWorker_ReconnectResumesFromLastCommit(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	proc := newRecordingProcessor(nil)
	w := startWorker(t, testConfig(WithPollOnError(StrategyReconnect)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 3), 2*time.Second, 5*time.Millisecond)

	first := broker.Consumers()[0]
	first.SetPollError(errors.New("broker unavailable"))

	require.Eventually(
		t, func() bool {
			return len(broker.Consumers()) >= 2 && first.IsClosed()
		}, 2*time.Second, 5*time.Millisecond,
	)
	require.Equal(t, 1, first.CloseCount())

	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k4", "v4", "k5", "v5")...)

	require.Eventually(t, committedAt(broker, 0, 5), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{0, 1, 2, 3, 4}, proc.Seen())
	require.Equal(t, StatePolling, w.State())
}

func TestWorker_ReconnectRedeliversUncommittedRecords(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	proc := newRecordingProcessor(panicAt(1, 1))
	startWorker(t, testConfig(WithPollOnError(StrategyReconnect)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 3), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, proc.Count(0), "committed progress before the failure was replayed")
	require.Equal(t, 2, proc.Count(1))
	require.Len(t, broker.Consumers(), 2)
}

func TestWorker_RetryRewindsWithoutReconnecting(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	proc := newRecordingProcessor(panicAt(1, 2))
	startWorker(t, testConfig(WithPollOnError(StrategyRetry)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 3), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 3, proc.Count(1))
	require.Equal(t, 1, proc.Count(0))

	consumers := broker.Consumers()
	require.Len(t, consumers, 1)
	require.False(t, consumers[0].IsClosed())
	require.Equal(t, 2, consumers[0].RewindCount())
}

func TestWorker_RetryKeepsPollingAfterPollError(t *testing.T) {
	t.Parallel()

	var fails atomic.Int32
	fails.Store(3)
	broker := mockkafka.NewBroker(
		mockkafka.WithOnConsumer(
			func(_ context.Context, c *mockkafka.Consumer, _ kafka.ClientConfig) {
				c.SetPollErrorFunc(
					func() error {
						if fails.Add(-1) >= 0 {
							return errors.New("transient")
						}
						return nil
					},
				)
			},
		),
	)
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1")...)

	proc := newRecordingProcessor(nil)
	startWorker(t, testConfig(WithPollOnError(StrategyRetry)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 1), 2*time.Second, 5*time.Millisecond)
	require.Len(t, broker.Consumers(), 1)
	require.GreaterOrEqual(t, broker.Consumers()[0].PollCount(), 4)
}

func TestWorker_StopStrategyEndsWorker(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	proc := newRecordingProcessor(panicAt(1, 1000))
	w := startWorker(t, testConfig(WithPollOnError(StrategyStop)), broker, proc)

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	require.Equal(t, StateStopped, w.State())
	require.Equal(t, 1, proc.Count(1))
	require.Zero(t, proc.Count(2))
	broker.AssertCommitted(t, testTopic, 0, 1)

	consumers := broker.Consumers()
	require.Len(t, consumers, 1)
	require.Equal(t, 1, consumers[0].CloseCount())
}

func TestWorker_BreakOnFirstErrorStopStrategyReconnectsOnReturnedError(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3", "k4", "v4")...)

	proc := newRecordingProcessor(failAt(2, 1))
	w := startWorker(t, testConfig(WithBreakOnFirstError(true), WithPollOnError(StrategyStop)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 4), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 2, proc.Count(2), "failing record was not redelivered")
	require.Equal(t, 1, proc.Count(1))
	require.Equal(t, StatePolling, w.State())

	consumers := broker.Consumers()
	require.Len(t, consumers, 2)
	require.True(t, consumers[0].IsClosed())
}

func TestWorker_BreakOnFirstErrorStopStrategyEndsOnPanic(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3", "k4", "v4")...)

	proc := newRecordingProcessor(panicAt(2, 1000))
	w := startWorker(t, testConfig(WithBreakOnFirstError(true), WithPollOnError(StrategyStop)), broker, proc)

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	require.Equal(t, StateStopped, w.State())
	broker.AssertCommitted(t, testTopic, 0, 2)
	require.Equal(t, int64(2), maxCommitted(broker, 0))
	require.Zero(t, proc.Count(3))
	require.Len(t, broker.Consumers(), 1)
}

func TestWorker_BreakOnFirstErrorReconnectStrategyResumesAtFailingRecord(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3", "k4", "v4")...)

	proc := newRecordingProcessor(failAt(2, 1))
	startWorker(t, testConfig(WithBreakOnFirstError(true), WithPollOnError(StrategyReconnect)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 4), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{0, 1, 2, 2, 3}, proc.Seen())

	consumers := broker.Consumers()
	require.Len(t, consumers, 2, "expected exactly one new client")
	require.Equal(t, 1, consumers[0].CloseCount())
	require.False(t, consumers[1].IsClosed())
}

func TestWorker_ClientWithoutRewindReconnectsToRecover(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy PollErrorStrategy
		fail     func(*processor.Message, int) error
		seen     []int64
	}{
		{
			name:     "discard",
			strategy: StrategyDiscard,
			fail:     panicAt(2, 1000),
			seen:     []int64{0, 1, 2, 3, 4, 5},
		},
		{
			name:     "error handler",
			strategy: StrategyErrorHandler,
			fail:     panicAt(2, 1000),
			seen:     []int64{0, 1, 2, 3, 4, 5},
		},
		{
			name:     "retry",
			strategy: StrategyRetry,
			fail:     panicAt(2, 1),
			seen:     []int64{0, 1, 2, 2, 3, 4, 5},
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				broker := mockkafka.NewBroker()
				broker.AddRecords(
					testTopic, 0,
					mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3", "k4", "v4", "k5", "v5")...,
				)

				proc := newRecordingProcessor(tt.fail)
				startWorkerWithFactory(
					t, testConfig(WithPollOnError(tt.strategy), WithErrorHandler(&recordingHandler{})),
					withoutRewind(broker.Factory()), proc,
				)

				require.Eventually(t, committedAt(broker, 0, 5), 2*time.Second, 5*time.Millisecond)
				broker.AddRecords(testTopic, 0, mockkafka.SimpleRecord("k6", "v6"))
				require.Eventually(t, committedAt(broker, 0, 6), 2*time.Second, 5*time.Millisecond)

				require.Equal(t, tt.seen, proc.Seen())

				consumers := broker.Consumers()
				require.Len(t, consumers, 2)
				require.True(t, consumers[0].IsClosed())
				require.Zero(t, consumers[0].RewindCount())
			},
		)
	}
}

func TestWorker_ClientWithoutRewindRetriesPollErrorInPlace(t *testing.T) {
	t.Parallel()

	var fails atomic.Int32
	fails.Store(3)
	broker := mockkafka.NewBroker(
		mockkafka.WithOnConsumer(
			func(_ context.Context, c *mockkafka.Consumer, _ kafka.ClientConfig) {
				c.SetPollErrorFunc(
					func() error {
						if fails.Add(-1) >= 0 {
							return errors.New("transient")
						}
						return nil
					},
				)
			},
		),
	)
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1")...)

	proc := newRecordingProcessor(nil)
	startWorkerWithFactory(t, testConfig(WithPollOnError(StrategyRetry)), withoutRewind(broker.Factory()), proc)

	require.Eventually(t, committedAt(broker, 0, 1), 2*time.Second, 5*time.Millisecond)
	require.Len(t, broker.Consumers(), 1, "nothing was delivered, so no reconnect is needed")
}

func TestWorker_ShutdownDoesNotWaitForSession(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1")...)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	proc := newRecordingProcessor(
		func(_ *processor.Message, _ int) error {
			once.Do(func() { close(started) })
			<-release
			return nil
		},
	)

	w := startWorker(t, testConfig(WithShutdownTimeout(2*time.Second)), broker, proc)
	<-started

	start := time.Now()
	w.Shutdown()
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	require.True(t, w.WaitForStop(2*time.Second))
	broker.AssertCommitted(t, testTopic, 0, 1)
}

func TestWorker_ProcessorErrorWithoutBreakIsReportedOnce(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(
		testTopic, 0,
		mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3", "k4", "v4", "k5", "v5")...,
	)

	handler := &recordingHandler{}
	proc := newRecordingProcessor(failAt(2, 1000))
	startWorker(t, testConfig(WithErrorHandler(handler)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 5), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{0, 1, 2, 3, 4}, proc.Seen())

	reports := handler.Reports()
	require.Len(t, reports, 1)
	require.Equal(t, int64(2), reports[0].Record.Offset)
	require.ErrorIs(t, reports[0].Error, errBoom)
	require.Equal(t, errorhandler.PhaseProcessing, reports[0].Phase)
	require.Len(t, broker.Consumers(), 1)
}

func TestWorker_StopUnblocksPoll(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	cfg := testConfig(WithPollTimeout(time.Minute), WithShutdownTimeout(500*time.Millisecond))

	w, err := NewWorker(WorkerID{Topic: testTopic}, cfg, broker.Factory(), newRecordingProcessor(nil))
	require.NoError(t, err)

	go func() {
		_ = w.Run(context.Background())
	}()

	require.Eventually(
		t, func() bool {
			consumers := broker.Consumers()
			return len(consumers) == 1 && consumers[0].IsBlocked()
		}, 2*time.Second, 5*time.Millisecond,
	)

	start := time.Now()
	w.Stop()
	require.True(t, w.WaitForStop(time.Second))
	assert.Less(t, time.Since(start), time.Second)

	require.Equal(t, StateStopped, w.State())
	require.Equal(t, 1, broker.Consumers()[0].CloseCount())

	// stopping again is harmless
	w.Stop()
	w.Shutdown()
	require.Equal(t, 1, broker.Consumers()[0].CloseCount())
}

func TestWorker_ContextCancelStops(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1")...)

	w, err := NewWorker(WorkerID{Topic: testTopic}, testConfig(), broker.Factory(), newRecordingProcessor(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = w.Run(ctx)
	}()

	require.Eventually(t, committedAt(broker, 0, 1), 2*time.Second, 5*time.Millisecond)
	cancel()

	require.True(t, w.WaitForStop(time.Second))
	require.Equal(t, 1, broker.Consumers()[0].CloseCount())
}

func TestWorker_StopBeforeRun(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	w, err := NewWorker(WorkerID{Topic: testTopic}, testConfig(), broker.Factory(), newRecordingProcessor(nil))
	require.NoError(t, err)

	w.Stop()
	require.NoError(t, w.Run(context.Background()))
	require.Zero(t, broker.FactoryAttempts())
}

func TestWorker_RetriesClientCreation(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker(
		mockkafka.WithFactoryErrorFunc(
			func(attempt int) error {
				if attempt < 3 {
					return errors.New("brokers unreachable")
				}
				return nil
			},
		),
	)
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1")...)

	l := mocklogger.New()
	proc := newRecordingProcessor(nil)
	w := startWorker(t, testConfig(WithLogger(l)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 1), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 3, broker.FactoryAttempts())
	require.Equal(t, StatePolling, w.State())
	require.Equal(t, 2, l.CountMessage("Failed to create client"))
}

func TestWorker_FailedForcedCommitReconnects(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	broker := mockkafka.NewBroker(
		mockkafka.WithOnConsumer(
			func(_ context.Context, c *mockkafka.Consumer, _ kafka.ClientConfig) {
				if created.Add(1) == 1 {
					c.SetCommitError(errors.New("coordinator moved"))
				}
			},
		),
	)
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2")...)

	proc := newRecordingProcessor(panicAt(0, 1))
	startWorker(t, testConfig(WithPollOnError(StrategyDiscard)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 2), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 2, proc.Count(0), "record skipped without a durable commit")

	consumers := broker.Consumers()
	require.GreaterOrEqual(t, len(consumers), 2)
	require.True(t, consumers[0].IsClosed())
}

func TestWorker_FailedReportReconnects(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords(testTopic, 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2")...)

	handler := &recordingHandler{
		err: func(n int) error {
			if n == 1 {
				return errors.New("dead letter topic unavailable")
			}
			return nil
		},
	}
	proc := newRecordingProcessor(panicAt(1, 1000))
	startWorker(t, testConfig(WithPollOnError(StrategyErrorHandler), WithErrorHandler(handler)), broker, proc)

	require.Eventually(t, committedAt(broker, 0, 2), 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 2, proc.Count(1))
	require.Len(t, handler.Reports(), 2)
	require.Len(t, broker.Consumers(), 2)

	reports := handler.Reports()
	require.Equal(t, 1, reports[0].Attempt)
	require.Equal(t, 2, reports[1].Attempt)
}

func TestWorker_PatternSubscription(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	broker.AddRecords("orders.eu", 0, mockkafka.SimpleRecords("k1", "v1")...)
	broker.AddRecords("orders.us", 0, mockkafka.SimpleRecords("k2", "v2")...)
	broker.AddRecords("payments", 0, mockkafka.SimpleRecords("k3", "v3")...)

	var topics atomic.Value
	topics.Store([]string{})
	proc := processor.Func(
		func(_ context.Context, msg *processor.Message) error {
			topics.Store(append(topics.Load().([]string), msg.Topic))
			return nil
		},
	)

	w, err := NewWorker(WorkerID{Topic: `^orders\..*`, Pattern: true}, testConfig(), broker.Factory(), proc)
	require.NoError(t, err)
	go func() {
		_ = w.Run(context.Background())
	}()
	t.Cleanup(
		func() {
			w.Stop()
			w.WaitForStop(time.Second)
		},
	)

	require.Eventually(
		t, func() bool {
			_, eu := broker.CommittedOffset("orders.eu", 0)
			_, us := broker.CommittedOffset("orders.us", 0)
			return eu && us
		}, 2*time.Second, 5*time.Millisecond,
	)
	require.ElementsMatch(t, []string{"orders.eu", "orders.us"}, topics.Load().([]string))
	broker.AssertNotCommitted(t, "payments", 0)
}

func TestNewWorker_InvalidConsistencyMode(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	_, err := NewWorker(
		WorkerID{Topic: testTopic}, testConfig(WithConsistencyMode("strongish")), broker.Factory(),
		newRecordingProcessor(nil),
	)
	require.ErrorIs(t, err, kafka.ErrInvalidConsistencyMode)
}

func TestNewWorker_PassesModeAndTopicToFactory(t *testing.T) {
	t.Parallel()

	broker := mockkafka.NewBroker()
	cfg := testConfig(
		WithConsistencyMode("guarantee_consumption"),
		WithClientConfig(kafka.ClientConfig{GroupID: "test-group", GroupInstanceID: "billing"}),
	)
	startWorker(t, cfg, broker, newRecordingProcessor(nil))

	require.Eventually(
		t, func() bool {
			return len(broker.Consumers()) == 1
		}, time.Second, 5*time.Millisecond,
	)

	c := broker.Consumers()[0]
	require.Equal(t, kafka.ConsistencyGuaranteeConsumption, c.Mode())
	require.Equal(t, testTopic, c.Config().Topic)
	require.Equal(t, "test-group", c.Config().GroupID)
	require.Equal(t, "billing-0", c.Config().GroupInstanceID)

	other, err := NewWorker(WorkerID{Topic: testTopic, Index: 2}, cfg, broker.Factory(), newRecordingProcessor(nil))
	require.NoError(t, err)
	require.Equal(t, "billing-2", other.cfg.Client.GroupInstanceID)
	require.Equal(t, "billing", cfg.Client.GroupInstanceID, "shared config was modified")
}

func TestWorkerID_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "orders#3", WorkerID{Topic: "orders", Index: 3}.String())
}
