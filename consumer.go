package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/processor"
	"github.com/hugolhafner/go-consumer/runner"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
	// ErrWorkersExited is returned by Run when every worker stopped on its own,
	// e.g. through the STOP poll error strategy.
	ErrWorkersExited = errors.New("all workers exited")
)

type Config struct {
	Logger logger.Logger
	// StopTimeout bounds how long Run waits for workers once it is asked to
	// return.
	StopTimeout   time.Duration
	RunnerOptions []runner.Option
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithStopTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.StopTimeout = d
	}
}

// WithRunnerOptions configures the supervisor and its workers.
func WithRunnerOptions(opts ...runner.Option) ConfigOption {
	return func(c *Config) {
		c.RunnerOptions = append(c.RunnerOptions, opts...)
	}
}

func defaultConfig() Config {
	return Config{
		Logger:      logger.NewNoopLogger(),
		StopTimeout: 30 * time.Second,
	}
}

// Application consumes one topic with a processor until it is closed or its
// context is cancelled.
type Application struct {
	topic     string
	factory   kafka.Factory
	processor processor.Processor
	config    Config
	logger    logger.Logger

	mu         sync.Mutex
	running    bool
	supervisor *runner.Supervisor
	closeOnce  sync.Once
	closedCh   chan struct{}
}

func NewApplication(
	topic string, factory kafka.Factory, proc processor.Processor, opts ...ConfigOption,
) (*Application, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewApplicationWithConfig(topic, factory, proc, config)
}

func NewApplicationWithConfig(
	topic string, factory kafka.Factory, proc processor.Processor, config Config,
) (*Application, error) {
	if config.Logger == nil {
		config.Logger = logger.NewNoopLogger()
	}

	return &Application{
		topic:     topic,
		factory:   factory,
		processor: proc,
		config:    config,
		logger:    config.Logger,
		closedCh:  make(chan struct{}),
	}, nil
}

// Run starts the workers and blocks until ctx is cancelled, Close is called or
// every worker exited. Workers are stopped before it returns.
func (a *Application) Run(ctx context.Context) error {
	if err := a.startRunning(); err != nil {
		return err
	}
	defer a.Close()

	opts := append([]runner.Option{runner.WithLogger(a.logger)}, a.config.RunnerOptions...)
	s, err := runner.NewSupervisor(a.topic, a.factory, a.processor, opts...)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	a.mu.Lock()
	a.supervisor = s
	a.mu.Unlock()

	a.logger.Info("Application started", "topic", a.topic, "version", Version)

	var result error
	select {
	case <-ctx.Done():
	case <-a.closedCh:
	case <-s.Done():
		result = ErrWorkersExited
	}

	s.Stop(a.config.StopTimeout)
	a.logger.Info("Application stopped", "topic", a.topic)

	return result
}

// Supervisor returns the running supervisor, or nil before Run started it.
func (a *Application) Supervisor() *runner.Supervisor {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.supervisor
}

func (a *Application) Close() {
	a.closeOnce.Do(
		func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			a.running = false
			close(a.closedCh)
		},
	)
}

func (a *Application) startRunning() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return ErrClosed
	default:
	}

	a.running = true
	return nil
}
