package mockkafka

import (
	"context"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

var (
	_ kafka.Consumer = (*Consumer)(nil)
	_ kafka.Rewinder = (*Consumer)(nil)
)

// Consumer is a kafka.Consumer reading from a Broker.
type Consumer struct {
	broker *Broker
	config kafka.ClientConfig
	mode   kafka.ConsistencyMode
	match  func(string) bool

	mu          sync.Mutex
	position    map[kafka.TopicPartition]int64
	uncommitted kafka.Offsets

	// wake is non-nil while a Poll is blocked
	wake          chan struct{}
	wakeupPending bool
	wakeups       int

	polls      int
	closeCount int
	rewinds    int

	pollErr   func() error
	commitErr func(offsets kafka.Offsets) error
}

// Poll returns up to the broker's max poll records. When nothing is available
// it blocks until records arrive, the timeout elapses, ctx is cancelled or
// Wakeup is called.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) (kafka.RecordBatch, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	c.mu.Lock()
	c.polls++
	pollErr := c.pollErr
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if c.closeCount > 0 {
			c.mu.Unlock()
			return nil, kafka.ErrClientClosed
		}
		if c.wakeupPending {
			c.wakeupPending = false
			c.mu.Unlock()
			return nil, kafka.ErrWakeup
		}

		if pollErr != nil {
			if err := pollErr(); err != nil {
				c.mu.Unlock()
				return nil, err
			}
			pollErr = nil
		}

		batch, appended := c.broker.fetch(c.match, c.position, c.broker.maxPollRecords)
		if len(batch) > 0 {
			kafka.AttachMarkers(c.uncommitted.Clone(), batch)
			for _, r := range batch {
				c.uncommitted.Advance(r)
			}
			c.mu.Unlock()
			return batch, nil
		}

		wake := make(chan struct{})
		c.wake = wake
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			c.clearWake(wake)
			return nil, ctx.Err()
		case <-wake:
			c.mu.Lock()
			closed := c.closeCount > 0
			c.mu.Unlock()
			if closed {
				return nil, kafka.ErrClientClosed
			}
			return nil, kafka.ErrWakeup
		case <-deadline.C:
			c.clearWake(wake)
			return kafka.RecordBatch{}, nil
		case <-appended:
			c.clearWake(wake)
		}
	}
}

func (c *Consumer) clearWake(wake chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wake == wake {
		c.wake = nil
	}
}

func (c *Consumer) CommitSync(ctx context.Context, marker kafka.CommitMarker) error {
	offsets := kafka.OffsetsOf(marker)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closeCount > 0 {
		return kafka.ErrClientClosed
	}
	if c.commitErr != nil {
		if err := c.commitErr(offsets); err != nil {
			return err
		}
	}
	if len(offsets) == 0 {
		return nil
	}

	c.broker.commit(offsets)

	for tp, o := range offsets {
		if cur, ok := c.uncommitted[tp]; ok && o.Offset >= cur.Offset {
			delete(c.uncommitted, tp)
		}
	}

	return nil
}

// RewindToCommitted moves every partition back to the broker's committed offset.
func (c *Consumer) RewindToCommitted(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	for tp := range c.position {
		c.position[tp] = c.broker.committedFor(tp)
	}
	c.uncommitted = kafka.Offsets{}
	c.rewinds++

	return nil
}

func (c *Consumer) Wakeup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wakeups++
	if c.wake != nil {
		close(c.wake)
		c.wake = nil
		return
	}

	c.wakeupPending = true
}

func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCount++
	if c.wake != nil {
		close(c.wake)
		c.wake = nil
	}
}

// Config returns the configuration the consumer was created with.
func (c *Consumer) Config() kafka.ClientConfig {
	return c.config
}

// Mode returns the consistency mode the consumer was created with.
func (c *Consumer) Mode() kafka.ConsistencyMode {
	return c.mode
}

// SetPollError configures an error returned by every Poll call. Pass nil to clear.
func (c *Consumer) SetPollError(err error) {
	if err == nil {
		c.SetPollErrorFunc(nil)
		return
	}
	c.SetPollErrorFunc(func() error { return err })
}

// SetPollErrorFunc configures a function deciding Poll errors.
func (c *Consumer) SetPollErrorFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pollErr = fn
}

// SetCommitError configures an error returned by every CommitSync call.
func (c *Consumer) SetCommitError(err error) {
	if err == nil {
		c.SetCommitErrorFunc(nil)
		return
	}
	c.SetCommitErrorFunc(func(kafka.Offsets) error { return err })
}

// SetCommitErrorFunc configures a function deciding CommitSync errors.
func (c *Consumer) SetCommitErrorFunc(fn func(offsets kafka.Offsets) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commitErr = fn
}

// IsBlocked reports whether a Poll is currently waiting for records.
func (c *Consumer) IsBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.wake != nil
}

// IsClosed returns whether Close has been called.
func (c *Consumer) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeCount > 0
}

// CloseCount returns how many times Close was called.
func (c *Consumer) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeCount
}

// PollCount returns how many times Poll was called.
func (c *Consumer) PollCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.polls
}

// WakeupCount returns how many times Wakeup was called.
func (c *Consumer) WakeupCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.wakeups
}

// RewindCount returns how many times RewindToCommitted was called.
func (c *Consumer) RewindCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rewinds
}
