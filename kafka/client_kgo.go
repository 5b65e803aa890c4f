package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var (
	_ Consumer = (*KgoConsumer)(nil)
	_ Rewinder = (*KgoConsumer)(nil)
)

type KgoConfig struct {
	Logger   logger.Logger
	ExtraOps []kgo.Opt
}

func defaultKgoConfig() KgoConfig {
	return KgoConfig{
		Logger: logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoConfig)

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoConfig) {
		cfg.Logger = l.With("client", "kgo")
	}
}

// WithKgoOpts appends raw franz-go options, e.g. TLS or SASL settings.
func WithKgoOpts(opts ...kgo.Opt) KgoOption {
	return func(cfg *KgoConfig) {
		cfg.ExtraOps = append(cfg.ExtraOps, opts...)
	}
}

// NewKgoFactory returns a Factory creating plain franz-go consumers. The
// consistency mode is recorded but has no effect on a plain client.
func NewKgoFactory(opts ...KgoOption) Factory {
	return func(ctx context.Context, cfg ClientConfig, mode ConsistencyMode) (Consumer, error) {
		return NewKgoConsumer(cfg, mode, opts...)
	}
}

// KgoConsumer implements Consumer on top of a franz-go group consumer with
// auto commit disabled.
type KgoConsumer struct {
	client *kgo.Client
	config ClientConfig
	mode   ConsistencyMode
	logger logger.Logger

	mu            sync.Mutex
	pollCancel    context.CancelFunc
	woken         bool
	wakeupPending bool
	closed        bool

	// posMu guards positions delivered by Poll but not yet committed
	posMu       sync.Mutex
	uncommitted Offsets
	rewindTo    Offsets
}

func NewKgoConsumer(cfg ClientConfig, mode ConsistencyMode, opts ...KgoOption) (*KgoConsumer, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConsistencyMode, int(mode))
	}
	if cfg.Topic == "" {
		return nil, errors.New("kgo consumer: topic is required")
	}
	if cfg.MaxPollRecords <= 0 {
		cfg.MaxPollRecords = 500
	}

	kcfg := defaultKgoConfig()
	for _, opt := range opts {
		opt(&kcfg)
	}

	kc := &KgoConsumer{
		config:      cfg,
		mode:        mode,
		logger:      kcfg.Logger.With("topic", cfg.Topic, "consistency", mode.String()),
		uncommitted: Offsets{},
		rewindTo:    Offsets{},
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "go-consumer"
	}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ClientID(clientID + "-" + uuid.NewString()),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsRevoked(kc.onLost),
		kgo.OnPartitionsLost(kc.onLost),
		kgo.WithLogger(newKgoLogger(kc.logger)),
	}
	if cfg.TopicIsPattern {
		kgoOpts = append(kgoOpts, kgo.ConsumeRegex())
	}
	if cfg.GroupInstanceID != "" {
		kgoOpts = append(kgoOpts, kgo.InstanceID(cfg.GroupInstanceID))
	}
	if cfg.SessionTimeout > 0 {
		kgoOpts = append(kgoOpts, kgo.SessionTimeout(cfg.SessionTimeout))
	}
	if cfg.HeartbeatInterval > 0 {
		kgoOpts = append(kgoOpts, kgo.HeartbeatInterval(cfg.HeartbeatInterval))
	}
	propOpts, unknown, err := kgoPropertyOpts(cfg.Properties)
	if err != nil {
		return nil, fmt.Errorf("kgo consumer: %w", err)
	}
	if len(unknown) > 0 {
		kc.logger.Warn("Ignoring client properties", "keys", unknown)
	}
	kgoOpts = append(kgoOpts, propOpts...)
	kgoOpts = append(kgoOpts, kcfg.ExtraOps...)

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client
	kc.logger.Debug("Created kgo consumer", "group", cfg.GroupID, "pattern", cfg.TopicIsPattern)

	return kc, nil
}

// Mode returns the consistency mode the consumer was created with
func (k *KgoConsumer) Mode() ConsistencyMode {
	return k.mode
}

func (k *KgoConsumer) onLost(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
	k.posMu.Lock()
	defer k.posMu.Unlock()

	for _, tp := range mapToTopicPartitions(lost) {
		delete(k.uncommitted, tp)
		delete(k.rewindTo, tp)
	}
}

func (k *KgoConsumer) Poll(ctx context.Context, timeout time.Duration) (RecordBatch, error) {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil, ErrClientClosed
	}
	if k.wakeupPending {
		k.wakeupPending = false
		k.mu.Unlock()
		return nil, ErrWakeup
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	k.pollCancel = cancel
	k.woken = false
	k.mu.Unlock()

	fetches := k.client.PollRecords(pollCtx, k.config.MaxPollRecords)
	cancel()

	k.mu.Lock()
	woken := k.woken
	k.pollCancel = nil
	k.woken = false
	k.mu.Unlock()

	if woken {
		return nil, ErrWakeup
	}
	if fetches.IsClientClosed() {
		return nil, ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fetchErr error
	fetches.EachError(
		func(topic string, partition int32, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return
			}
			k.logger.Warn("Fetch error", "error", err, "fetch_topic", topic, "partition", partition)
			if fetchErr == nil {
				fetchErr = fmt.Errorf("poll %s-%d: %w", topic, partition, err)
			}
		},
	)

	records := fetches.Records()
	if len(records) == 0 {
		return nil, fetchErr
	}

	// records already fetched advance the client position and are delivered
	// even when another partition failed
	return k.deliver(records), nil
}

func (k *KgoConsumer) deliver(records []*kgo.Record) RecordBatch {
	batch := convertRecords(records)

	k.posMu.Lock()
	defer k.posMu.Unlock()

	AttachMarkers(k.uncommitted.Clone(), batch)

	for _, r := range batch {
		tp := r.TopicPartition()
		if _, ok := k.rewindTo[tp]; !ok {
			k.rewindTo[tp] = Offset{Offset: r.Offset, LeaderEpoch: r.LeaderEpoch}
		}
		k.uncommitted.Advance(r)
	}

	return batch
}

func (k *KgoConsumer) CommitSync(ctx context.Context, marker CommitMarker) error {
	offsets := OffsetsOf(marker)
	if len(offsets) == 0 {
		return nil
	}

	toCommit := make(map[string]map[int32]kgo.EpochOffset)
	for tp, offset := range offsets {
		if _, ok := toCommit[tp.Topic]; !ok {
			toCommit[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}

		toCommit[tp.Topic][tp.Partition] = kgo.EpochOffset{
			Offset: offset.Offset,
			Epoch:  offset.LeaderEpoch,
		}
	}

	var commitErr error
	onDone := func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			commitErr = err
			return
		}

		for _, t := range resp.Topics {
			for _, p := range t.Partitions {
				if pErr := kerr.ErrorForCode(p.ErrorCode); pErr != nil {
					commitErr = fmt.Errorf("%s-%d: %w", t.Topic, p.Partition, pErr)
					return
				}
			}
		}
	}

	k.client.CommitOffsetsSync(ctx, toCommit, onDone)
	if commitErr != nil {
		return fmt.Errorf("commit offsets: %w", commitErr)
	}

	k.markCommitted(offsets)
	return nil
}

func (k *KgoConsumer) markCommitted(offsets Offsets) {
	k.posMu.Lock()
	defer k.posMu.Unlock()

	for tp, committed := range offsets {
		cur, ok := k.uncommitted[tp]
		if !ok {
			continue
		}

		if committed.Offset >= cur.Offset {
			delete(k.uncommitted, tp)
			delete(k.rewindTo, tp)
			continue
		}

		k.rewindTo[tp] = committed
	}
}

// RewindToCommitted seeks every partition with delivered but uncommitted
// records back to its committed position.
func (k *KgoConsumer) RewindToCommitted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.posMu.Lock()
	defer k.posMu.Unlock()

	if len(k.rewindTo) == 0 {
		return nil
	}

	set := make(map[string]map[int32]kgo.EpochOffset)
	for tp, offset := range k.rewindTo {
		if _, ok := set[tp.Topic]; !ok {
			set[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		set[tp.Topic][tp.Partition] = kgo.EpochOffset{Offset: offset.Offset, Epoch: offset.LeaderEpoch}
	}

	k.client.SetOffsets(set)
	k.logger.Debug("Rewound to committed offsets", "partitions", len(k.rewindTo))

	k.uncommitted = Offsets{}
	k.rewindTo = Offsets{}
	return nil
}

func (k *KgoConsumer) Wakeup() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.pollCancel != nil {
		k.woken = true
		k.pollCancel()
		return
	}

	k.wakeupPending = true
}

func (k *KgoConsumer) Close() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	if k.pollCancel != nil {
		k.pollCancel()
	}
	k.mu.Unlock()

	k.client.CloseAllowingRebalance()
}

func convertRecords(records []*kgo.Record) RecordBatch {
	converted := make(RecordBatch, len(records))
	for i, r := range records {
		converted[i] = Record{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertFromKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}

	return converted
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func convertToKgoHeaders(headers []Header) []kgo.RecordHeader {
	kgoHeaders := make([]kgo.RecordHeader, len(headers))
	for i, h := range headers {
		kgoHeaders[i] = kgo.RecordHeader{Key: h.Key, Value: h.Value}
	}
	return kgoHeaders
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(
				tps, TopicPartition{
					Topic:     topic,
					Partition: partition,
				},
			)
		}
	}

	return tps
}
