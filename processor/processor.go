package processor

import (
	"context"
	"fmt"
	"time"
)

// Message is the normalized view of a consumed record handed to a Processor.
// Headers always contain the reserved kafka.* entries plus every propagated
// custom header.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Key       []byte
	Headers   map[string]any
	Body      []byte
}

// Header returns the header stored under key.
func (m *Message) Header(key string) (any, bool) {
	v, ok := m.Headers[key]
	return v, ok
}

// HeaderString returns the header under key formatted as a string.
func (m *Message) HeaderString(key string) (string, bool) {
	v, ok := m.Headers[key]
	if !ok {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// Processor is the application callback invoked once per record, in poll
// order. Returning an error marks the record as failed; panics are recovered
// by the caller and treated as raised failures.
type Processor interface {
	Process(ctx context.Context, msg *Message) error
}

// Func adapts a plain function to Processor.
type Func func(ctx context.Context, msg *Message) error

func (f Func) Process(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}
