//go:build unit

package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/hugolhafner/go-consumer/processor"
	"github.com/stretchr/testify/require"
)

const testTopic = "orders"

var errBoom = errors.New("boom")

func testConfig(opts ...Option) Config {
	base := []Option{
		WithClientConfig(kafka.ClientConfig{GroupID: "test-group"}),
		WithPollTimeout(20 * time.Millisecond),
		WithCommitTimeout(time.Second),
		WithShutdownTimeout(time.Second),
		WithReconnectBackoff(backoff.NewFixed(10 * time.Millisecond)),
		WithPollErrorBackoff(backoff.NewFixed(5 * time.Millisecond)),
	}
	return NewConfig(append(base, opts...)...)
}

// startWorker runs a worker for testTopic until the test ends.
func startWorker(t *testing.T, cfg Config, broker *mockkafka.Broker, proc processor.Processor) *Worker {
	t.Helper()

	return startWorkerWithFactory(t, cfg, broker.Factory(), proc)
}

func startWorkerWithFactory(t *testing.T, cfg Config, factory kafka.Factory, proc processor.Processor) *Worker {
	t.Helper()

	w, err := NewWorker(WorkerID{Topic: testTopic}, cfg, factory, proc)
	require.NoError(t, err)

	go func() {
		_ = w.Run(context.Background())
	}()

	t.Cleanup(
		func() {
			w.Stop()
			require.True(t, w.WaitForStop(5*time.Second), "worker did not stop")
		},
	)

	return w
}

// plainConsumer exposes only the required Consumer methods, hiding the
// mock's Rewinder implementation.
type plainConsumer struct {
	kafka.Consumer
}

// withoutRewind wraps every client created by factory in a plainConsumer.
func withoutRewind(factory kafka.Factory) kafka.Factory {
	return func(ctx context.Context, cfg kafka.ClientConfig, mode kafka.ConsistencyMode) (kafka.Consumer, error) {
		c, err := factory(ctx, cfg, mode)
		if err != nil {
			return nil, err
		}
		return plainConsumer{Consumer: c}, nil
	}
}

// recordingProcessor records every offset handed to it and fails according to
// failFn.
type recordingProcessor struct {
	mu     sync.Mutex
	seen   []int64
	failFn func(msg *processor.Message, attempt int) error
}

func newRecordingProcessor(failFn func(msg *processor.Message, attempt int) error) *recordingProcessor {
	return &recordingProcessor{failFn: failFn}
}

func (p *recordingProcessor) Process(_ context.Context, msg *processor.Message) error {
	p.mu.Lock()
	attempt := 1
	for _, o := range p.seen {
		if o == msg.Offset {
			attempt++
		}
	}
	p.seen = append(p.seen, msg.Offset)
	fn := p.failFn
	p.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(msg, attempt)
}

func (p *recordingProcessor) Seen() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]int64, len(p.seen))
	copy(out, p.seen)
	return out
}

func (p *recordingProcessor) Count(offset int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, o := range p.seen {
		if o == offset {
			n++
		}
	}
	return n
}

// failAt returns errBoom for offset on the first `times` attempts.
func failAt(offset int64, times int) func(*processor.Message, int) error {
	return func(msg *processor.Message, attempt int) error {
		if msg.Offset == offset && attempt <= times {
			return errBoom
		}
		return nil
	}
}

// panicAt panics for offset on the first `times` attempts.
func panicAt(offset int64, times int) func(*processor.Message, int) error {
	return func(msg *processor.Message, attempt int) error {
		if msg.Offset == offset && attempt <= times {
			panic("processor exploded")
		}
		return nil
	}
}

// recordingHandler stores every reported ErrorContext.
type recordingHandler struct {
	mu      sync.Mutex
	reports []errorhandler.ErrorContext
	err     func(n int) error
}

func (h *recordingHandler) Handle(_ context.Context, ec errorhandler.ErrorContext) error {
	h.mu.Lock()
	h.reports = append(h.reports, ec)
	n := len(h.reports)
	fn := h.err
	h.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(n)
}

func (h *recordingHandler) Reports() []errorhandler.ErrorContext {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]errorhandler.ErrorContext, len(h.reports))
	copy(out, h.reports)
	return out
}

func committedAt(b *mockkafka.Broker, partition int32, next int64) func() bool {
	return func() bool {
		o, ok := b.CommittedOffset(testTopic, partition)
		return ok && o.Offset == next
	}
}

func maxCommitted(b *mockkafka.Broker, partition int32) int64 {
	tp := kafka.TopicPartition{Topic: testTopic, Partition: partition}

	var highest int64 = -1
	for _, c := range b.Commits() {
		if o, ok := c[tp]; ok && o.Offset > highest {
			highest = o.Offset
		}
	}
	return highest
}
