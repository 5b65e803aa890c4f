package processor

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-consumer/serde"
)

// BodyError is returned by Typed processors when the body cannot be decoded.
type BodyError struct {
	Topic  string
	Offset int64
	Err    error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("decode body of %s@%d: %v", e.Topic, e.Offset, e.Err)
}

func (e *BodyError) Unwrap() error {
	return e.Err
}

type typedProcessor[V any] struct {
	body serde.Deserialiser[V]
	fn   func(ctx context.Context, msg *Message, value V) error
}

// Typed decodes the message body with d before calling fn. A decode failure is
// returned as a *BodyError without invoking fn.
func Typed[V any](d serde.Deserialiser[V], fn func(ctx context.Context, msg *Message, value V) error) Processor {
	return &typedProcessor[V]{body: d, fn: fn}
}

func (p *typedProcessor[V]) Process(ctx context.Context, msg *Message) error {
	value, err := p.body.Deserialise(msg.Topic, msg.Body)
	if err != nil {
		return &BodyError{Topic: msg.Topic, Offset: msg.Offset, Err: err}
	}

	return p.fn(ctx, msg, value)
}
