package mockkafka

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Broker is an in-memory stand-in for a Kafka cluster and a single consumer
// group. Consumers created through Factory share its logs and committed
// offsets, so a recreated consumer resumes from the last commit.
type Broker struct {
	mu sync.Mutex

	logs      map[kafka.TopicPartition][]kafka.Record
	committed kafka.Offsets
	commits   []kafka.Offsets

	consumers []*Consumer
	attempts  int

	// appended is closed and replaced whenever records are added
	appended chan struct{}

	maxPollRecords int
	factoryErr     func(attempt int) error
	onConsumer     func(ctx context.Context, c *Consumer, cfg kafka.ClientConfig)
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		logs:           make(map[kafka.TopicPartition][]kafka.Record),
		committed:      kafka.Offsets{},
		appended:       make(chan struct{}),
		maxPollRecords: 10,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Factory returns a kafka.Factory creating consumers bound to this broker.
func (b *Broker) Factory() kafka.Factory {
	return func(ctx context.Context, cfg kafka.ClientConfig, mode kafka.ConsistencyMode) (kafka.Consumer, error) {
		b.mu.Lock()
		b.attempts++
		attempt := b.attempts
		fail := b.factoryErr
		b.mu.Unlock()

		if fail != nil {
			if err := fail(attempt); err != nil {
				return nil, err
			}
		}

		c := b.NewConsumer(cfg, mode)
		if b.onConsumer != nil {
			b.onConsumer(ctx, c, cfg)
		}
		return c, nil
	}
}

// NewConsumer creates a consumer positioned at the committed offsets.
func (b *Broker) NewConsumer(cfg kafka.ClientConfig, mode kafka.ConsistencyMode) *Consumer {
	var match func(string) bool
	if cfg.TopicIsPattern {
		re := regexp.MustCompile(cfg.Topic)
		match = re.MatchString
	} else {
		match = func(topic string) bool { return topic == cfg.Topic }
	}

	c := &Consumer{
		broker:      b,
		config:      cfg,
		mode:        mode,
		match:       match,
		position:    make(map[kafka.TopicPartition]int64),
		uncommitted: kafka.Offsets{},
	}

	b.mu.Lock()
	b.consumers = append(b.consumers, c)
	b.mu.Unlock()

	return c
}

// AddRecords appends records to a topic-partition log. Offsets are assigned
// sequentially from the current end of the log.
func (b *Broker) AddRecords(topic string, partition int32, records ...kafka.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	existing := len(b.logs[tp])

	for i := range records {
		records[i].Topic = topic
		records[i].Partition = partition
		records[i].Offset = int64(existing + i)
		records[i].Marker = nil
	}

	b.logs[tp] = append(b.logs[tp], records...)

	close(b.appended)
	b.appended = make(chan struct{})
}

func (b *Broker) commit(offsets kafka.Offsets) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for tp, o := range offsets {
		b.committed[tp] = o
	}
	b.commits = append(b.commits, offsets.Clone())
}

// fetch returns up to max records past position for matching partitions, in
// topic-partition order.
func (b *Broker) fetch(match func(string) bool, position map[kafka.TopicPartition]int64, max int) (
	kafka.RecordBatch, <-chan struct{},
) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tps := make([]kafka.TopicPartition, 0, len(b.logs))
	for tp := range b.logs {
		if match(tp.Topic) {
			tps = append(tps, tp)
		}
	}
	sort.Slice(
		tps, func(i, j int) bool {
			if tps[i].Topic != tps[j].Topic {
				return tps[i].Topic < tps[j].Topic
			}
			return tps[i].Partition < tps[j].Partition
		},
	)

	var out kafka.RecordBatch
	for _, tp := range tps {
		pos, ok := position[tp]
		if !ok {
			pos = b.committed[tp].Offset
		}

		log := b.logs[tp]
		for pos < int64(len(log)) && len(out) < max {
			out = append(out, log[pos])
			pos++
		}
		position[tp] = pos

		if len(out) >= max {
			break
		}
	}

	return out, b.appended
}

func (b *Broker) committedFor(tp kafka.TopicPartition) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.committed[tp].Offset
}

// CommittedOffset returns the committed position for a topic-partition.
func (b *Broker) CommittedOffset(topic string, partition int32) (kafka.Offset, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.committed[kafka.TopicPartition{Topic: topic, Partition: partition}]
	return o, ok
}

// CommittedOffsets returns a copy of all committed offsets.
func (b *Broker) CommittedOffsets() kafka.Offsets {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.committed.Clone()
}

// Commits returns every successful commit in order.
func (b *Broker) Commits() []kafka.Offsets {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]kafka.Offsets, len(b.commits))
	copy(out, b.commits)
	return out
}

// Consumers returns every consumer created so far, in creation order.
func (b *Broker) Consumers() []*Consumer {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Consumer, len(b.consumers))
	copy(out, b.consumers)
	return out
}

// FactoryAttempts returns how many times Factory was called, including failures.
func (b *Broker) FactoryAttempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.attempts
}
