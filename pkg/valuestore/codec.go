package valuestore

import "encoding/json"

// Value is any client type the store accepts. Description names the
// telemetry bucket samples are recorded under; it's typically the static
// type name ("Ticket", "Comment") rather than anything instance-specific.
type Value interface {
	Description() string
}

// Codec serializes and deserializes a Value. The store treats the result
// opaquely; it never inspects payload bytes itself.
type Codec[V Value] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSONCodec is the default Codec. No third-party serialization library
// appears anywhere in the retrieved corpus, so this is one of the
// deliberate standard-library exceptions documented in DESIGN.md.
type JSONCodec[V Value] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[V]) Decode(data []byte) (V, error) {
	var v V
	err := json.Unmarshal(data, &v)
	return v, err
}
