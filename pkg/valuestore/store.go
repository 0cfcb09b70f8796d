// Package valuestore is the typed wrapper binding a key domain and a value
// type to the raw arena: encode/decode plus telemetry, nothing else.
package valuestore

import (
	"fmt"

	"github.com/heaplattice/heapstore/internal/telemetry"
	"github.com/heaplattice/heapstore/pkg/arena"
	"github.com/heaplattice/heapstore/pkg/key"
)

// Store binds a key.Domain[K] and a Codec[V] to a raw *arena.Arena under one
// numeric prefix. It records one sample per newly inserted value on Add
// (its total footprint: slot plus stored bytes) and the stored payload
// length on Get into a named telemetry.Sampler; compressed and original
// sizes are not recorded separately, and Get records no bytes-allocated
// figure at any log level. It registers
// itself in the process-wide registry at construction, the same way other
// store types in this codebase self-register.
type Store[K fmt.Stringer, V Value] struct {
	a      *arena.Arena
	domain key.Domain[K]
	codec  Codec[V]
	prefix uint32

	name    string
	sampler *telemetry.Sampler
}

// New constructs a Store and registers its sampler under name. Close must
// be called to unregister it.
func New[K fmt.Stringer, V Value](a *arena.Arena, prefix uint32, codec Codec[V], name string) *Store[K, V] {
	return &Store[K, V]{
		a:       a,
		domain:  key.NewDomain[K](),
		codec:   codec,
		prefix:  prefix,
		name:    name,
		sampler: telemetry.Register(name),
	}
}

// Close unregisters the store's sampler. It does not close the underlying
// arena, which may be shared with other stores.
func (s *Store[K, V]) Close() {
	telemetry.Unregister(s.name)
}

func (s *Store[K, V]) digest(k K) arena.Digest {
	return arena.Digest(key.MD5(s.domain.Make(s.prefix, k)))
}

// Add stores v under k if absent, same idempotent-no-op semantics as
// arena.Arena.Add.
func (s *Store[K, V]) Add(k K, v V) (arena.AddResult, error) {
	return s.AddDigest(s.digest(k), v)
}

// Get returns the decoded value stored under k.
func (s *Store[K, V]) Get(k K) (V, error) {
	return s.GetDigest(s.digest(k))
}

// Mem reports whether k is currently present.
func (s *Store[K, V]) Mem(k K) (bool, error) {
	return s.a.Mem(s.digest(k))
}

// Remove deletes the entry for k.
func (s *Store[K, V]) Remove(k K) (int, error) {
	return s.a.Remove(s.digest(k))
}

// AddDigest stores v under an already-computed digest, bypassing key.Domain.
// It exists for callers — pkg/overlay via pkg/cachedstore — that compute
// their own digests across the new/old namespace split and only need the
// encode/decode-plus-telemetry half of what Store does.
func (s *Store[K, V]) AddDigest(d arena.Digest, v V) (arena.AddResult, error) {
	payload, err := s.codec.Encode(v)
	if err != nil {
		return arena.AddResult{}, fmt.Errorf("valuestore: encode %s: %w", v.Description(), err)
	}

	res, err := s.a.Add(d, payload)
	if err != nil {
		return res, err
	}
	if res.Inserted {
		s.sampler.Record(v.Description(), int64(res.TotalFootprint))
	}
	return res, nil
}

// GetDigest reads and decodes the value at an already-computed digest.
func (s *Store[K, V]) GetDigest(d arena.Digest) (V, error) {
	var zero V

	payload, err := s.a.Get(d)
	if err != nil {
		return zero, err
	}

	v, err := s.codec.Decode(payload)
	if err != nil {
		return zero, fmt.Errorf("valuestore: decode: %w", err)
	}

	s.sampler.Record(v.Description(), int64(len(payload)))
	return v, nil
}

// MemDigest reports presence at an already-computed digest.
func (s *Store[K, V]) MemDigest(d arena.Digest) (bool, error) {
	return s.a.Mem(d)
}

// RemoveDigest deletes the entry at an already-computed digest.
func (s *Store[K, V]) RemoveDigest(d arena.Digest) (int, error) {
	return s.a.Remove(d)
}

// Move relocates the entry at src to dst.
func (s *Store[K, V]) Move(src, dst K) error {
	return s.a.Move(s.digest(src), s.digest(dst))
}
