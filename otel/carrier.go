package otel

import (
	"slices"

	"github.com/hugolhafner/go-consumer/kafka"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = RecordHeadersCarrier{}

// RecordHeadersCarrier exposes record headers to a propagator. Kafka allows a
// key to repeat; the last occurrence is the one a producer appended most
// recently, so it wins on Get.
type RecordHeadersCarrier struct {
	headers *[]kafka.Header
}

func NewRecordHeadersCarrier(headers *[]kafka.Header) RecordHeadersCarrier {
	return RecordHeadersCarrier{headers: headers}
}

func (c RecordHeadersCarrier) Get(key string) string {
	hs := *c.headers
	for i := len(hs) - 1; i >= 0; i-- {
		if hs[i].Key == key {
			return string(hs[i].Value)
		}
	}
	return ""
}

// Set leaves exactly one header for key. The backing array is not modified, so
// headers shared with the consumed record stay intact.
func (c RecordHeadersCarrier) Set(key, value string) {
	out := make([]kafka.Header, 0, len(*c.headers)+1)
	for _, h := range *c.headers {
		if h.Key != key {
			out = append(out, h)
		}
	}
	*c.headers = append(out, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists every key once, in first appearance order.
func (c RecordHeadersCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		if !slices.Contains(keys, h.Key) {
			keys = append(keys, h.Key)
		}
	}
	return keys
}
