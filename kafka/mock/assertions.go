package mockkafka

import (
	"testing"
)

// AssertCommitted fails unless the committed position of topic-partition
// equals next, the offset the group resumes from.
func (b *Broker) AssertCommitted(tb testing.TB, topic string, partition int32, next int64) {
	tb.Helper()

	o, ok := b.CommittedOffset(topic, partition)
	if !ok {
		tb.Errorf("expected %s-%d to be committed at %d, nothing committed", topic, partition, next)
		return
	}
	if o.Offset != next {
		tb.Errorf("expected %s-%d to be committed at %d, got %d", topic, partition, next, o.Offset)
	}
}

// AssertNotCommitted fails if anything was committed for topic-partition.
func (b *Broker) AssertNotCommitted(tb testing.TB, topic string, partition int32) {
	tb.Helper()

	if o, ok := b.CommittedOffset(topic, partition); ok {
		tb.Errorf("expected %s-%d not to be committed, got %d", topic, partition, o.Offset)
	}
}

// AssertProducedString checks a record with the given key and value was sent to topic.
func (p *Producer) AssertProducedString(tb testing.TB, topic, key, value string) {
	tb.Helper()

	for _, r := range p.ProducedRecordsForTopic(topic) {
		if string(r.Key) == key && string(r.Value) == value {
			return
		}
	}

	tb.Errorf("expected record key=%q value=%q on topic %q", key, value, topic)
}
