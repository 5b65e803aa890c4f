package serde

import "fmt"

type untypedDeserialiser[T any] struct {
	typed Deserialiser[T]
}

func (a untypedDeserialiser[T]) Deserialise(topic string, data []byte) (any, error) {
	return a.typed.Deserialise(topic, data)
}

type untypedSerde[T any] struct {
	untypedDeserialiser[T]
	typed Serialiser[T]
}

func (a untypedSerde[T]) Serialise(topic string, value any) ([]byte, error) {
	typed, ok := value.(T)
	if !ok {
		return nil, fmt.Errorf("serde: expected %T, got %T", *new(T), value)
	}
	return a.typed.Serialise(topic, typed)
}

// ToUntypedDeserialiser erases the result type of d.
func ToUntypedDeserialiser[T any](d Deserialiser[T]) UntypedDeserialiser {
	return untypedDeserialiser[T]{typed: d}
}

// ToUntyped erases the type of s. Serialise fails for values that are not a T.
func ToUntyped[T any](s Serde[T]) UntypedSerde {
	return untypedSerde[T]{untypedDeserialiser: untypedDeserialiser[T]{typed: s}, typed: s}
}
