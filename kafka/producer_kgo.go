package kafka

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-consumer/logger"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ Producer = (*KgoProducer)(nil)

// KgoProducer publishes records synchronously. It is used for dead lettering,
// never on the consume path.
type KgoProducer struct {
	client *kgo.Client
	logger logger.Logger
}

func NewKgoProducer(bootstrapServers []string, opts ...KgoOption) (*KgoProducer, error) {
	kcfg := defaultKgoConfig()
	for _, opt := range opts {
		opt(&kcfg)
	}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(bootstrapServers...),
		kgo.WithLogger(newKgoLogger(kcfg.Logger)),
	}
	kgoOpts = append(kgoOpts, kcfg.ExtraOps...)

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo producer: %w", err)
	}

	return &KgoProducer{client: client, logger: kcfg.Logger}, nil
}

func (p *KgoProducer) Send(ctx context.Context, topic string, key, value []byte, headers []Header) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: convertToKgoHeaders(headers),
	}

	p.logger.Debug("Sending record", "topic", topic, "key", string(key))

	return p.client.ProduceSync(ctx, record).FirstErr()
}

func (p *KgoProducer) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

func (p *KgoProducer) Close() {
	p.client.Close()
}
