package valuestore

import (
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/heaplattice/heapstore/internal/telemetry"
)

// profiledTag marks an encoded payload as carrying a profiling envelope.
// Real Codec output (JSON text, or any other textual/binary encoding used
// in this corpus) never legitimately starts with this byte, so a decoder
// can tell an enveloped payload from a bare one by inspecting one byte.
const profiledTag = 0xF1

// ProfiledCodec wraps an inner Codec so that, at sampleRate, an Add call
// prefixes the encoded value with a one-byte tag and an 8-byte write
// timestamp. A later Get through the same ProfiledCodec detects the tag and
// emits an access-sample event carrying the age of the value at read time.
// A read of a non-enveloped value (the common case when sampleRate < 1)
// still decodes correctly, since the envelope is a one-byte discriminated
// union rather than a change to the wire format itself.
type ProfiledCodec[V Value] struct {
	inner      Codec[V]
	sampleRate float64
	source     string
}

// NewProfiledCodec wraps inner; sampleRate is clamped to [0,1].
func NewProfiledCodec[V Value](inner Codec[V], sampleRate float64, source string) ProfiledCodec[V] {
	if sampleRate < 0 {
		sampleRate = 0
	}
	if sampleRate > 1 {
		sampleRate = 1
	}
	return ProfiledCodec[V]{inner: inner, sampleRate: sampleRate, source: source}
}

func (c ProfiledCodec[V]) Encode(v V) ([]byte, error) {
	payload, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.sampleRate <= 0 || rand.Float64() >= c.sampleRate {
		return payload, nil
	}

	buf := make([]byte, 9+len(payload))
	buf[0] = profiledTag
	binary.LittleEndian.PutUint64(buf[1:9], uint64(time.Now().UnixNano()))
	copy(buf[9:], payload)
	return buf, nil
}

func (c ProfiledCodec[V]) Decode(data []byte) (V, error) {
	if len(data) >= 9 && data[0] == profiledTag {
		writtenAt := int64(binary.LittleEndian.Uint64(data[1:9]))
		v, err := c.inner.Decode(data[9:])
		if err != nil {
			var zero V
			return zero, err
		}

		telemetry.Emit(telemetry.Event{
			Type:   "valuestore.profiled.access",
			Level:  telemetry.LevelVerbose,
			Source: c.source,
			Data: map[string]any{
				"description": v.Description(),
				"age_ns":      time.Now().UnixNano() - writtenAt,
			},
		})

		return v, nil
	}

	return c.inner.Decode(data)
}
