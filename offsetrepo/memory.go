package offsetrepo

import (
	"context"
	"sync"

	"github.com/hugolhafner/go-consumer/kafka"
)

var _ Repository = (*Memory)(nil)

// Memory keeps positions in process. Stored offsets survive Stop/Start.
type Memory struct {
	mu      sync.RWMutex
	running bool
	offsets kafka.Offsets
}

func NewMemory() *Memory {
	return &Memory{offsets: kafka.Offsets{}}
}

func (m *Memory) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = true
	return nil
}

func (m *Memory) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	return nil
}

func (m *Memory) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.running
}

func (m *Memory) Store(_ context.Context, offsets kafka.Offsets) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}

	for tp, o := range offsets {
		m.offsets[tp] = o
	}
	return nil
}

func (m *Memory) Load(_ context.Context, tp kafka.TopicPartition) (kafka.Offset, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.running {
		return kafka.Offset{}, false, ErrNotRunning
	}

	o, ok := m.offsets[tp]
	return o, ok, nil
}

func (m *Memory) All(context.Context) (kafka.Offsets, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.running {
		return nil, ErrNotRunning
	}
	return m.offsets.Clone(), nil
}
