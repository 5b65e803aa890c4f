package serde

// Serde pairs a Serialiser and a Deserialiser for the same type.
type Serde[T any] interface {
	Serialiser[T]
	Deserialiser[T]
}

type Serialiser[T any] interface {
	Serialise(topic string, value T) ([]byte, error)
}

// Deserialiser turns a record key, value or header value into T. topic is the
// topic the bytes were consumed from.
type Deserialiser[T any] interface {
	Deserialise(topic string, data []byte) (T, error)
}

// DeserialiserFunc adapts a plain function to Deserialiser.
type DeserialiserFunc[T any] func(topic string, data []byte) (T, error)

func (f DeserialiserFunc[T]) Deserialise(topic string, data []byte) (T, error) {
	return f(topic, data)
}

// UntypedDeserialiser is a Deserialiser whose result type is only known at
// runtime, e.g. the header deserializer configured for a consumer.
type UntypedDeserialiser interface {
	Deserialise(topic string, data []byte) (any, error)
}

type UntypedSerialiser interface {
	Serialise(topic string, value any) ([]byte, error)
}

type UntypedSerde interface {
	UntypedSerialiser
	UntypedDeserialiser
}
