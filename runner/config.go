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

// Config is shared by the supervisor and every worker it starts
type Config struct {
	// Client is handed to the factory for every client a worker creates. Topic
	// and TopicIsPattern are overwritten from the supervisor.
	Client         kafka.ClientConfig
	TopicIsPattern bool

	ConsumersCount int

	PollTimeout     time.Duration
	CommitTimeout   time.Duration
	ShutdownTimeout time.Duration

	BreakOnFirstError bool
	PollOnError       PollErrorStrategy

	// ConsistencyMode is parsed when a worker is created; an unknown value
	// fails that worker.
	ConsistencyMode string

	// ReconnectBackoff is waited before a client is recreated.
	ReconnectBackoff backoff.Backoff
	// PollErrorBackoff is waited after an error handled in place (retry, or a
	// failed poll the client is kept for) so a persistent failure cannot spin.
	PollErrorBackoff backoff.Backoff

	Logger           logger.Logger
	ErrorHandler     errorhandler.Handler
	Headers          *header.Propagator
	OffsetRepository offsetrepo.Repository
	Telemetry        *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		ConsumersCount:   1,
		PollTimeout:      time.Second,
		CommitTimeout:    5 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		PollOnError:      StrategyReconnect,
		ConsistencyMode:  kafka.ConsistencyEventual.String(),
		ReconnectBackoff: backoff.NewFixed(time.Second),
		PollErrorBackoff: backoff.NewFixed(100 * time.Millisecond),
		Logger:           logger.NewNoopLogger(),
		Headers:          header.NewPropagator(),
		Telemetry:        otel.Noop(),
	}
}

// NewConfig returns the default configuration with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = errorhandler.LogAndContinue(cfg.Logger)
	}
	return cfg
}
