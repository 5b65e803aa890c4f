package serde

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

type protobufSerde[T proto.Message] struct{}

// Protobuf returns a Serde for generated message types, e.g. *pb.Order.
func Protobuf[T proto.Message]() Serde[T] {
	return protobufSerde[T]{}
}

func (s protobufSerde[T]) Serialise(_ string, value T) ([]byte, error) {
	return proto.Marshal(value)
}

func (s protobufSerde[T]) Deserialise(topic string, data []byte) (T, error) {
	var zero T
	// generated messages answer ProtoReflect on a nil receiver
	result, ok := zero.ProtoReflect().New().Interface().(T)
	if !ok {
		return zero, fmt.Errorf("serde: cannot instantiate %T", zero)
	}

	if err := proto.Unmarshal(data, result); err != nil {
		return zero, fmt.Errorf("unmarshal protobuf from %s: %w", topic, err)
	}
	return result, nil
}
