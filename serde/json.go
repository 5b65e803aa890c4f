package serde

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyPayload is returned when a JSON body is empty, e.g. a tombstone.
var ErrEmptyPayload = errors.New("serde: empty payload")

type JSONOption func(*jsonSerdeConfig)

type jsonSerdeConfig struct {
	strict bool
}

// WithStrictJSON rejects bodies carrying fields T does not declare.
func WithStrictJSON() JSONOption {
	return func(c *jsonSerdeConfig) {
		c.strict = true
	}
}

type jsonSerde[T any] struct {
	cfg jsonSerdeConfig
}

// JSON returns a Serde for JSON record bodies. Decoding errors name the topic
// the body came from.
func JSON[T any](opts ...JSONOption) Serde[T] {
	var cfg jsonSerdeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return jsonSerde[T]{cfg: cfg}
}

func (s jsonSerde[T]) Serialise(topic string, value T) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode json for %s: %w", topic, err)
	}
	return data, nil
}

func (s jsonSerde[T]) Deserialise(topic string, data []byte) (T, error) {
	var result T
	if len(bytes.TrimSpace(data)) == 0 {
		return result, fmt.Errorf("decode json from %s: %w", topic, ErrEmptyPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if s.cfg.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("decode json from %s: %w", topic, err)
	}
	if dec.More() {
		return result, fmt.Errorf("decode json from %s: trailing data after value", topic)
	}

	return result, nil
}
