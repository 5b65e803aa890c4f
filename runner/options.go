package runner

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/header"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/offsetrepo"
	"github.com/hugolhafner/go-consumer/otel"
)

type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) {
	f(c)
}

type loggerOption struct {
	logger logger.Logger
}

func (o loggerOption) apply(c *Config) {
	if o.logger != nil {
		c.Logger = o.logger
	}
}

func WithLogger(l logger.Logger) loggerOption {
	return loggerOption{logger: l}
}

type errorHandlerOption struct {
	handler errorhandler.Handler
}

func (o errorHandlerOption) apply(c *Config) {
	if o.handler != nil {
		c.ErrorHandler = o.handler
	}
}

// WithErrorHandler sets the handler failures are reported to
func WithErrorHandler(h errorhandler.Handler) errorHandlerOption {
	return errorHandlerOption{handler: h}
}

// WithClientConfig sets the consumer configuration handed to the factory
func WithClientConfig(cfg kafka.ClientConfig) Option {
	return optionFunc(
		func(c *Config) {
			c.Client = cfg
		},
	)
}

// WithTopicPattern treats the supervisor topic as a regular expression
func WithTopicPattern(pattern bool) Option {
	return optionFunc(
		func(c *Config) {
			c.TopicIsPattern = pattern
		},
	)
}

type consumersCountOption int

func (o consumersCountOption) apply(c *Config) {
	if o > 0 {
		c.ConsumersCount = int(o)
	}
}

// WithConsumersCount sets the number of parallel workers
func WithConsumersCount(n int) consumersCountOption {
	return consumersCountOption(n)
}

type pollTimeoutOption time.Duration

func (o pollTimeoutOption) apply(c *Config) {
	if o > 0 {
		c.PollTimeout = time.Duration(o)
	}
}

func WithPollTimeout(d time.Duration) pollTimeoutOption {
	return pollTimeoutOption(d)
}

type commitTimeoutOption time.Duration

func (o commitTimeoutOption) apply(c *Config) {
	if o > 0 {
		c.CommitTimeout = time.Duration(o)
	}
}

func WithCommitTimeout(d time.Duration) commitTimeoutOption {
	return commitTimeoutOption(d)
}

type shutdownTimeoutOption time.Duration

func (o shutdownTimeoutOption) apply(c *Config) {
	if o > 0 {
		c.ShutdownTimeout = time.Duration(o)
	}
}

// WithShutdownTimeout bounds how long a worker stop waits for the session lock
func WithShutdownTimeout(d time.Duration) shutdownTimeoutOption {
	return shutdownTimeoutOption(d)
}

// WithBreakOnFirstError stops a batch at the first failing record and
// reconnects, resuming at that record
func WithBreakOnFirstError(enabled bool) Option {
	return optionFunc(
		func(c *Config) {
			c.BreakOnFirstError = enabled
		},
	)
}

type pollOnErrorOption PollErrorStrategy

func (o pollOnErrorOption) apply(c *Config) {
	if PollErrorStrategy(o).Valid() {
		c.PollOnError = PollErrorStrategy(o)
	}
}

func WithPollOnError(s PollErrorStrategy) pollOnErrorOption {
	return pollOnErrorOption(s)
}

// WithConsistencyMode sets the blue-green consistency mode by name
func WithConsistencyMode(mode string) Option {
	return optionFunc(
		func(c *Config) {
			c.ConsistencyMode = mode
		},
	)
}

type reconnectBackoffOption struct {
	b backoff.Backoff
}

func (o reconnectBackoffOption) apply(c *Config) {
	if o.b != nil {
		c.ReconnectBackoff = o.b
	}
}

func WithReconnectBackoff(b backoff.Backoff) reconnectBackoffOption {
	return reconnectBackoffOption{b: b}
}

type pollErrorBackoffOption struct {
	b backoff.Backoff
}

func (o pollErrorBackoffOption) apply(c *Config) {
	if o.b != nil {
		c.PollErrorBackoff = o.b
	}
}

func WithPollErrorBackoff(b backoff.Backoff) pollErrorBackoffOption {
	return pollErrorBackoffOption{b: b}
}

// WithHeaderPropagator sets the header filter and deserializer policy
func WithHeaderPropagator(p *header.Propagator) Option {
	return optionFunc(
		func(c *Config) {
			if p != nil {
				c.Headers = p
			}
		},
	)
}

// WithOffsetRepository mirrors every successful commit into repo
func WithOffsetRepository(repo offsetrepo.Repository) Option {
	return optionFunc(
		func(c *Config) {
			c.OffsetRepository = repo
		},
	)
}

func WithTelemetry(t *otel.Telemetry) Option {
	return optionFunc(
		func(c *Config) {
			if t != nil {
				c.Telemetry = t
			}
		},
	)
}
