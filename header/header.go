package header

import (
	"fmt"
	"strings"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/serde"
)

// Reserved header names describing where a record came from. They are always
// present on a propagated header map and are never overwritten by record headers.
const (
	ReservedPrefix = "kafka."

	Topic     = ReservedPrefix + "TOPIC"
	Partition = ReservedPrefix + "PARTITION"
	Offset    = ReservedPrefix + "OFFSET"
	Timestamp = ReservedPrefix + "TIMESTAMP"
	Key       = ReservedPrefix + "KEY"
)

// FilterStrategy decides which custom record headers are propagated.
type FilterStrategy interface {
	Propagate(key string) bool
}

type FilterFunc func(key string) bool

func (f FilterFunc) Propagate(key string) bool {
	return f(key)
}

// DefaultFilter propagates every header except those in the reserved namespace.
func DefaultFilter() FilterStrategy {
	return FilterFunc(
		func(key string) bool {
			return !strings.HasPrefix(key, ReservedPrefix)
		},
	)
}

// AllowPrefixes propagates only headers starting with one of prefixes.
func AllowPrefixes(prefixes ...string) FilterStrategy {
	return FilterFunc(
		func(key string) bool {
			if strings.HasPrefix(key, ReservedPrefix) {
				return false
			}
			for _, p := range prefixes {
				if strings.HasPrefix(key, p) {
					return true
				}
			}
			return false
		},
	)
}

// DenyKeys propagates everything the default filter does, except keys.
func DenyKeys(keys ...string) FilterStrategy {
	deny := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		deny[k] = struct{}{}
	}

	return FilterFunc(
		func(key string) bool {
			if _, ok := deny[key]; ok {
				return false
			}
			return !strings.HasPrefix(key, ReservedPrefix)
		},
	)
}

// NoneFilter drops every custom header.
func NoneFilter() FilterStrategy {
	return FilterFunc(func(string) bool { return false })
}

// Deserializer converts a raw header value.
type Deserializer = serde.UntypedDeserialiser

// StringDeserializer exposes header values as strings.
func StringDeserializer() Deserializer {
	return serde.ToUntypedDeserialiser[string](serde.String())
}

// BytesDeserializer exposes header values as raw bytes.
func BytesDeserializer() Deserializer {
	return serde.ToUntypedDeserialiser[[]byte](serde.Bytes())
}

// DeserializeError reports a header value that could not be converted.
type DeserializeError struct {
	Key string
	Err error
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("deserialize header %q: %v", e.Key, e.Err)
}

func (e *DeserializeError) Unwrap() error {
	return e.Err
}

// Propagator builds the header map handed to processors.
type Propagator struct {
	filter       FilterStrategy
	deserializer Deserializer
}

type Option func(*Propagator)

func WithFilter(f FilterStrategy) Option {
	return func(p *Propagator) {
		if f != nil {
			p.filter = f
		}
	}
}

func WithDeserializer(d Deserializer) Option {
	return func(p *Propagator) {
		if d != nil {
			p.deserializer = d
		}
	}
}

// NewPropagator defaults to DefaultFilter and StringDeserializer.
func NewPropagator(opts ...Option) *Propagator {
	p := &Propagator{
		filter:       DefaultFilter(),
		deserializer: StringDeserializer(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Headers returns the reserved headers of r plus every custom header accepted
// by the filter. When a key repeats, the last value wins.
func (p *Propagator) Headers(r kafka.Record) (map[string]any, error) {
	out := make(map[string]any, len(r.Headers)+5)

	for _, h := range r.Headers {
		if !p.filter.Propagate(h.Key) {
			continue
		}

		v, err := p.deserializer.Deserialise(r.Topic, h.Value)
		if err != nil {
			return nil, &DeserializeError{Key: h.Key, Err: err}
		}
		out[h.Key] = v
	}

	out[Topic] = r.Topic
	out[Partition] = r.Partition
	out[Offset] = r.Offset
	out[Timestamp] = r.Timestamp
	out[Key] = r.Key

	return out, nil
}
