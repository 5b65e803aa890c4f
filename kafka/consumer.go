package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrWakeup is returned by Poll when Wakeup interrupted it, or when Wakeup
	// was called while no poll was in flight.
	ErrWakeup = errors.New("kafka: consumer woken up")

	ErrClientClosed = errors.New("kafka: client closed")

	ErrInvalidConsistencyMode = errors.New("kafka: invalid consistency mode")
)

// Consumer is the client capability a worker owns. Implementations are either
// a plain client or a blue-green aware one; workers never share an instance.
type Consumer interface {
	// Poll blocks for at most timeout and returns the records fetched so far.
	Poll(ctx context.Context, timeout time.Duration) (RecordBatch, error)

	// CommitSync durably commits everything covered by marker.
	CommitSync(ctx context.Context, marker CommitMarker) error

	// Wakeup interrupts an in-flight Poll. It is safe to call at any time and
	// from any goroutine.
	Wakeup()

	Close()
}

// Rewinder is implemented by consumers that can move their fetch position back
// to the last committed offsets without being recreated.
type Rewinder interface {
	RewindToCommitted(ctx context.Context) error
}

// Producer is used to publish reported records, e.g. to a dead letter topic.
type Producer interface {
	Send(ctx context.Context, topic string, key, value []byte, headers []Header) error
	Flush(ctx context.Context) error
	Close()
}

// Factory creates a fresh Consumer. It is called again every time a worker
// reconnects.
type Factory func(ctx context.Context, cfg ClientConfig, mode ConsistencyMode) (Consumer, error)

// ClientConfig is the standard consumer configuration handed to a Factory.
type ClientConfig struct {
	BootstrapServers []string
	GroupID          string
	// GroupInstanceID enables static membership when set.
	GroupInstanceID string
	ClientID        string

	Topic          string
	TopicIsPattern bool

	MaxPollRecords    int
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration

	// Properties are passed through untouched for implementations that need
	// more than the standard settings.
	Properties map[string]string
}

// ConsistencyMode governs how an inactive blue-green version relates to the
// active one. It is interpreted only by the Consumer implementation.
type ConsistencyMode int

const (
	ConsistencyEventual ConsistencyMode = iota
	ConsistencyGuaranteeConsumption
)

func (m ConsistencyMode) String() string {
	switch m {
	case ConsistencyEventual:
		return "EVENTUAL"
	case ConsistencyGuaranteeConsumption:
		return "GUARANTEE_CONSUMPTION"
	default:
		return "UNKNOWN"
	}
}

func (m ConsistencyMode) Valid() bool {
	return m == ConsistencyEventual || m == ConsistencyGuaranteeConsumption
}

func ParseConsistencyMode(s string) (ConsistencyMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "EVENTUAL":
		return ConsistencyEventual, nil
	case "GUARANTEE_CONSUMPTION":
		return ConsistencyGuaranteeConsumption, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidConsistencyMode, s)
	}
}
