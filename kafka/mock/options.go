package mockkafka

import (
	"context"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Option is a functional option for configuring a Broker.
type Option func(*Broker)

// WithMaxPollRecords sets the maximum number of records returned per Poll call.
// Default is 10.
func WithMaxPollRecords(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.maxPollRecords = n
		}
	}
}

// WithFactoryError configures an error returned by every Factory call.
func WithFactoryError(err error) Option {
	return func(b *Broker) {
		b.factoryErr = func(int) error { return err }
	}
}

// WithFactoryErrorFunc decides per creation attempt (1 indexed) whether the
// Factory fails.
func WithFactoryErrorFunc(fn func(attempt int) error) Option {
	return func(b *Broker) {
		b.factoryErr = fn
	}
}

// WithOnConsumer registers a hook called for every consumer the Factory
// creates, before it is handed to the caller.
func WithOnConsumer(fn func(ctx context.Context, c *Consumer, cfg kafka.ClientConfig)) Option {
	return func(b *Broker) {
		b.onConsumer = fn
	}
}
