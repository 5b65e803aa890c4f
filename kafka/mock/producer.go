package mockkafka

import (
	"context"
	"sync"

	"github.com/hugolhafner/go-consumer/kafka"
)

var _ kafka.Producer = (*Producer)(nil)

// ProducedRecord represents a record that was sent via the mock producer.
type ProducedRecord struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []kafka.Header
}

type Producer struct {
	mu       sync.Mutex
	produced []ProducedRecord
	sendErr  func(topic string, key, value []byte) error
	closed   bool
}

func NewProducer() *Producer {
	return &Producer{}
}

// Send stores the record. It can be verified using ProducedRecords().
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sendErr != nil {
		if err := p.sendErr(topic, key, value); err != nil {
			return err
		}
	}

	headersCopy := make([]kafka.Header, len(headers))
	for i, h := range headers {
		copied := make([]byte, len(h.Value))
		copy(copied, h.Value)
		headersCopy[i] = kafka.Header{Key: h.Key, Value: copied}
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	p.produced = append(
		p.produced, ProducedRecord{
			Topic:   topic,
			Key:     keyCopy,
			Value:   valueCopy,
			Headers: headersCopy,
		},
	)

	return nil
}

// Flush is a no-op for the mock producer since Send is synchronous.
func (p *Producer) Flush(ctx context.Context) error {
	return ctx.Err()
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
}

// SetSendError configures an error to be returned on all Send calls.
// Pass nil to clear the error.
func (p *Producer) SetSendError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.sendErr = nil
	} else {
		p.sendErr = func(string, []byte, []byte) error { return err }
	}
}

// ProducedRecords returns a copy of all records that have been sent via Send.
func (p *Producer) ProducedRecords() []ProducedRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]ProducedRecord, len(p.produced))
	copy(result, p.produced)
	return result
}

// ProducedRecordsForTopic returns all records produced to a specific topic.
func (p *Producer) ProducedRecordsForTopic(topic string) []ProducedRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result []ProducedRecord
	for _, r := range p.produced {
		if r.Topic == topic {
			result = append(result, r)
		}
	}
	return result
}
