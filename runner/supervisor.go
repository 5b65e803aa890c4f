package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/processor"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs a fixed number of workers consuming one topic, or one topic
// pattern, with the same processor.
type Supervisor struct {
	topic     string
	factory   kafka.Factory
	processor processor.Processor
	config    Config
	logger    logger.Logger

	mu        sync.Mutex
	started   bool
	workers   []*Worker
	done      chan struct{}
	ownsRepo  bool
	cancelRun context.CancelFunc
}

func NewSupervisor(topic string, factory kafka.Factory, proc processor.Processor, opts ...Option) (*Supervisor, error) {
	if topic == "" {
		return nil, ErrNoTopic
	}
	if factory == nil {
		return nil, errors.New("runner: factory is required")
	}
	if proc == nil {
		return nil, errors.New("runner: processor is required")
	}

	cfg := NewConfig(opts...)
	if cfg.ConsumersCount < 1 {
		return nil, fmt.Errorf("runner: consumers count must be positive, got %d", cfg.ConsumersCount)
	}

	return &Supervisor{
		topic:     topic,
		factory:   factory,
		processor: proc,
		config:    cfg,
		logger:    cfg.Logger.With("component", "supervisor", "topic", topic),
	}, nil
}

// Start creates the workers and runs each on its own goroutine. It returns once
// they are submitted; use Done to wait for them.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	if repo := s.config.OffsetRepository; repo != nil && !repo.Running() {
		if err := repo.Start(ctx); err != nil {
			// commits still reach the broker; only the mirror is lost
			s.logger.Error("Failed to start offset repository", "error", err)
		} else {
			s.ownsRepo = true
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	count := s.config.ConsumersCount
	var g errgroup.Group
	g.SetLimit(count)

	s.workers = make([]*Worker, 0, count)
	for i := 0; i < count; i++ {
		id := WorkerID{Topic: s.topic, Pattern: s.config.TopicIsPattern, Index: i}

		w, err := NewWorker(id, s.config, s.factory, s.processor)
		if err != nil {
			s.logger.Error("Failed to create worker", "worker", id.String(), "error", err)
			continue
		}

		s.workers = append(s.workers, w)
		g.Go(func() error {
			return w.Run(runCtx)
		})
	}

	done := make(chan struct{})
	s.done = done
	s.started = true

	go func() {
		if err := g.Wait(); err != nil {
			s.logger.Error("Worker pool exited with error", "error", err)
		}
		close(done)
	}()

	s.logger.Info("Supervisor started", "workers", len(s.workers), "requested", count)
	return nil
}

// Stop asks every worker to stop and waits up to timeout for them to exit.
// Workers still running afterwards are shut down without further waiting.
func (s *Supervisor) Stop(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info("Stopping supervisor", "workers", len(s.workers))

	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()

	t := time.NewTimer(timeout)
	select {
	case <-s.done:
	case <-t.C:
		s.logger.Warn("Workers did not stop in time, force shutdown", "timeout", timeout)
		var forced sync.WaitGroup
		for _, w := range s.workers {
			select {
			case <-w.Done():
				continue
			default:
			}

			forced.Add(1)
			go func() {
				defer forced.Done()
				w.Shutdown()
			}()
		}
		forced.Wait()
	}
	t.Stop()

	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}

	if s.ownsRepo {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.CommitTimeout)
		if err := s.config.OffsetRepository.Stop(ctx); err != nil {
			s.logger.Error("Failed to stop offset repository", "error", err)
		}
		cancel()
		s.ownsRepo = false
	}

	s.workers = nil
	s.started = false
	s.logger.Info("Supervisor stopped")
}

// Workers returns the workers of the current run.
func (s *Supervisor) Workers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Worker, len(s.workers))
	copy(out, s.workers)
	return out
}

func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.workers)
}

// Done is closed once every worker of the current run exited. It is nil
// before Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done
}

// Config returns the resolved configuration.
func (s *Supervisor) Config() Config {
	return s.config
}
