package mockkafka

import (
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// RecordBuilder provides a fluent interface for building Records.
type RecordBuilder struct {
	record kafka.Record
}

// Record creates a new RecordBuilder with the given key and value.
func Record(key, value string) *RecordBuilder {
	return &RecordBuilder{
		record: kafka.Record{
			Key:       []byte(key),
			Value:     []byte(value),
			Timestamp: time.Now(),
		},
	}
}

// WithTimestamp sets the record's timestamp.
func (b *RecordBuilder) WithTimestamp(ts time.Time) *RecordBuilder {
	b.record.Timestamp = ts
	return b
}

// WithHeader adds a header to the record.
func (b *RecordBuilder) WithHeader(key string, value []byte) *RecordBuilder {
	b.record.Headers = append(b.record.Headers, kafka.Header{Key: key, Value: value})
	return b
}

// WithLeaderEpoch sets the leader epoch.
func (b *RecordBuilder) WithLeaderEpoch(epoch int32) *RecordBuilder {
	b.record.LeaderEpoch = epoch
	return b
}

// Build returns the constructed Record.
func (b *RecordBuilder) Build() kafka.Record {
	return b.record
}

// SimpleRecord creates a Record with just key and value as strings.
func SimpleRecord(key, value string) kafka.Record {
	return Record(key, value).Build()
}

// SimpleRecords creates multiple Records from key-value pairs.
// key, value argument pairs
func SimpleRecords(keyValuePairs ...string) []kafka.Record {
	if len(keyValuePairs)%2 != 0 {
		panic("SimpleRecords requires an even number of arguments (key-value pairs)")
	}

	records := make([]kafka.Record, 0, len(keyValuePairs)/2)
	for i := 0; i < len(keyValuePairs); i += 2 {
		records = append(records, SimpleRecord(keyValuePairs[i], keyValuePairs[i+1]))
	}
	return records
}
