// Package cachedstore composes the full read/write path: an immediate
// valuestore.Store at the bottom, an overlay.Stack of speculative frames on
// top of it, an oldnew.View splitting that stack into new/old namespaces,
// and a localcache.LocalCache in front of the new namespace. Grounded on
// internal/ticket's cache sitting in front of its on-disk store
// (internal/ticket/cache.go), generalized from a single flat cache to one
// that must stay coherent across overlay pushes/pops and the old/new split.
package cachedstore

import (
	"fmt"

	"github.com/heaplattice/heapstore/pkg/localcache"
	"github.com/heaplattice/heapstore/pkg/oldnew"
	"github.com/heaplattice/heapstore/pkg/overlay"
	"github.com/heaplattice/heapstore/pkg/valuestore"
)

// Value is the constraint every cached value type must satisfy: it needs a
// Description for telemetry (valuestore.Value) and must be comparable so
// localcache's LFU tier can tell an update from a no-op Add.
type Value interface {
	valuestore.Value
	comparable
}

// Key is the constraint every cached key type must satisfy: fmt.Stringer
// for key.Domain's string encoding, comparable because localcache's tiers
// are plain Go maps keyed on it directly rather than on its arena digest.
type Key interface {
	fmt.Stringer
	comparable
}

// Store is the fully composed {Immediate} <- {Overlay} <- {Old/New split}
// <- {LocalCache} stack described by the cached-store contract: Get
// consults the cache first and populates it on a below-cache hit; Add
// always writes through and populates the cache; WriteAround writes to the
// stack without touching the cache; the old-namespace accessors bypass the
// cache entirely; Oldify/Revive invalidate the affected key; pushing or
// popping the overlay stack clears the cache wholesale, since cache entries
// are not stack-qualified.
type Store[K Key, V Value] struct {
	immediate *valuestore.Store[K, V]
	stack     *overlay.Stack[V]
	view      *oldnew.View[K, V]
	cache     *localcache.LocalCache[K, V]
}

// New constructs a Store. l1Capacity/l2C size the front LocalCache's two
// tiers (see pkg/localcache).
func New[K Key, V Value](immediate *valuestore.Store[K, V], prefix uint32, name string, l1Capacity, l2C int) *Store[K, V] {
	stack := overlay.NewStack[V](storeBase[K, V]{store: immediate}, name+".overlay")
	return &Store[K, V]{
		immediate: immediate,
		stack:     stack,
		view:      oldnew.NewView[K, V](stack, prefix),
		cache:     localcache.NewLocalCache[K, V](name, l1Capacity, l2C),
	}
}

// Close releases the front cache's and overlay stack's telemetry
// registrations. It does not close the underlying immediate store, which
// the caller constructed and owns.
func (s *Store[K, V]) Close() {
	s.cache.Close()
	s.stack.Close()
}

// Get consults the cache first; on a miss it reads through the overlay
// stack's new namespace and, on success, populates the cache.
func (s *Store[K, V]) Get(k K) (V, error) {
	if v, ok := s.cache.Get(k); ok {
		return v, nil
	}
	v, err := s.view.Get(k)
	if err != nil {
		var zero V
		return zero, err
	}
	s.cache.Add(k, v)
	return v, nil
}

// Mem consults the cache first, falling through to the new namespace.
func (s *Store[K, V]) Mem(k K) (bool, error) {
	if _, ok := s.cache.Get(k); ok {
		return true, nil
	}
	return s.view.Mem(k)
}

// Add always writes through to the new namespace and populates the cache.
func (s *Store[K, V]) Add(k K, v V) error {
	if err := s.view.Add(k, v); err != nil {
		return err
	}
	s.cache.Add(k, v)
	return nil
}

// Remove deletes k from the new namespace and evicts it from the cache.
func (s *Store[K, V]) Remove(k K) error {
	if err := s.view.Remove(k); err != nil {
		return err
	}
	s.cache.Remove(k)
	return nil
}

// WriteAround writes v under k directly to the overlay stack without
// touching the cache, for callers that already know the cache entry is
// fresher than what they're about to write underneath it.
func (s *Store[K, V]) WriteAround(k K, v V) error {
	return s.view.Add(k, v)
}

// GetOld reads from the old namespace, bypassing the cache entirely — the
// cache only ever holds new-namespace bindings.
func (s *Store[K, V]) GetOld(k K) (V, error) { return s.view.GetOld(k) }

// MemOld reports presence in the old namespace, bypassing the cache.
func (s *Store[K, V]) MemOld(k K) (bool, error) { return s.view.MemOld(k) }

// RemoveOld deletes k from the old namespace.
func (s *Store[K, V]) RemoveOld(k K) error { return s.view.RemoveOld(k) }

// Oldify moves k from the new namespace to the old one and drops any cached
// entry for it, since it's no longer reachable through the new-namespace
// accessors the cache serves.
func (s *Store[K, V]) Oldify(k K) error {
	if err := s.view.Oldify(k); err != nil {
		return err
	}
	s.cache.Remove(k)
	return nil
}

// Revive moves k from the old namespace back to the new one. Any stale
// cache entry for k is dropped so the next Get repopulates it from the
// stack rather than serving whatever was cached before the oldify.
func (s *Store[K, V]) Revive(k K) error {
	if err := s.view.Revive(k); err != nil {
		return err
	}
	s.cache.Remove(k)
	return nil
}

// OldifyBatch oldifies each key in turn, invalidating the cache for every
// key oldified. Per-element, not atomic across the batch.
func (s *Store[K, V]) OldifyBatch(ks []K) []error {
	errs := make([]error, len(ks))
	for i, k := range ks {
		errs[i] = s.Oldify(k)
	}
	return errs
}

// ReviveBatch revives each key in turn, invalidating the cache for every
// key revived. Per-element, not atomic across the batch.
func (s *Store[K, V]) ReviveBatch(ks []K) []error {
	errs := make([]error, len(ks))
	for i, k := range ks {
		errs[i] = s.Revive(k)
	}
	return errs
}

// PushStack pushes a new overlay frame and clears the entire cache, since
// cache entries are not stack-qualified: a value cached before the push
// could be shadowed by whatever the new frame goes on to hold.
func (s *Store[K, V]) PushStack() {
	s.stack.PushStack()
	s.cache.Invalidate()
}

// PopStack discards the top overlay frame and clears the entire cache.
// Panics on an empty stack, per overlay.Stack.PopStack.
func (s *Store[K, V]) PopStack() {
	s.stack.PopStack()
	s.cache.Invalidate()
}

// Depth reports how many overlay frames are currently pushed.
func (s *Store[K, V]) Depth() int { return s.stack.Depth() }

// Commit and CommitAll pass through to the overlay stack unchanged: Commit
// only relocates a frame's action one level down without altering the
// value visible from the top. Revert and RevertAll also drop the affected
// cache entries (one key, or the whole cache), since Add populates the
// cache from the very frame action a revert discards.

func (s *Store[K, V]) Revert(k K) error {
	if err := s.stack.Revert(s.view.Digest(k)); err != nil {
		return err
	}
	s.cache.Remove(k)
	return nil
}

func (s *Store[K, V]) Commit(k K) error {
	return s.stack.Commit(s.view.Digest(k))
}

func (s *Store[K, V]) RevertAll() error {
	if err := s.stack.RevertAll(); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}
func (s *Store[K, V]) CommitAll() error { return s.stack.CommitAll() }
