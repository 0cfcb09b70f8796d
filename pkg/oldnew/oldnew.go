// Package oldnew splits one overlay stack into two disjoint digest
// namespaces — "new" and "old" — so a caller can retire a key without
// deleting it, then either revive it or let it be reclaimed later.
// Grounded on internal/store's dual-generation rebuild (its reindex/rebuild
// passes kept both an old and new index alive during a migration window).
package oldnew

import (
	"fmt"

	"github.com/heaplattice/heapstore/pkg/arena"
	"github.com/heaplattice/heapstore/pkg/key"
	"github.com/heaplattice/heapstore/pkg/overlay"
)

// View binds a key.Domain[K] to one overlay.Stack[V], exposing separate
// method sets for the new and old namespaces so the two never cross except
// through Oldify/Revive.
type View[K fmt.Stringer, V any] struct {
	stack  *overlay.Stack[V]
	domain key.Domain[K]
	prefix uint32
}

// NewView constructs a View over stack under prefix.
func NewView[K fmt.Stringer, V any](stack *overlay.Stack[V], prefix uint32) *View[K, V] {
	return &View[K, V]{stack: stack, domain: key.NewDomain[K](), prefix: prefix}
}

func (v *View[K, V]) newDigest(k K) arena.Digest {
	return arena.Digest(key.MD5(v.domain.Make(v.prefix, k)))
}

func (v *View[K, V]) oldDigest(k K) arena.Digest {
	return arena.Digest(key.MD5(v.domain.MakeOld(v.prefix, k)))
}

// Digest returns the new-namespace arena.Digest for k, for callers that need
// to drive the underlying overlay.Stack directly (Revert/Commit operate on
// digests, not typed keys).
func (v *View[K, V]) Digest(k K) arena.Digest { return v.newDigest(k) }

// --- new-namespace passthroughs ---

func (v *View[K, V]) Add(k K, val V) error           { return v.stack.Add(v.newDigest(k), val) }
func (v *View[K, V]) Get(k K) (V, error)             { return v.stack.Get(v.newDigest(k)) }
func (v *View[K, V]) Mem(k K) (bool, error)          { return v.stack.Mem(v.newDigest(k)) }
func (v *View[K, V]) Remove(k K) error                { return v.stack.Remove(v.newDigest(k)) }

// --- old-namespace-only operations ---

func (v *View[K, V]) GetOld(k K) (V, error)    { return v.stack.Get(v.oldDigest(k)) }
func (v *View[K, V]) MemOld(k K) (bool, error) { return v.stack.Mem(v.oldDigest(k)) }
func (v *View[K, V]) RemoveOld(k K) error      { return v.stack.Remove(v.oldDigest(k)) }

// Oldify moves k's binding from the new namespace to the old one.
func (v *View[K, V]) Oldify(k K) error {
	newD := v.newDigest(k)
	val, err := v.stack.Get(newD)
	if err != nil {
		return fmt.Errorf("oldify %v: %w", k, err)
	}
	if err := v.stack.Remove(newD); err != nil {
		return fmt.Errorf("oldify %v: %w", k, err)
	}
	if err := v.stack.Add(v.oldDigest(k), val); err != nil {
		return fmt.Errorf("oldify %v: %w", k, err)
	}
	return nil
}

// Revive moves k's binding from the old namespace back to the new one,
// first removing any pre-existing new binding so overlay's move-style
// precondition (destination absent) holds.
func (v *View[K, V]) Revive(k K) error {
	oldD := v.oldDigest(k)
	val, err := v.stack.Get(oldD)
	if err != nil {
		return fmt.Errorf("revive %v: %w", k, err)
	}

	newD := v.newDigest(k)
	if present, err := v.stack.Mem(newD); err != nil {
		return fmt.Errorf("revive %v: %w", k, err)
	} else if present {
		if err := v.stack.Remove(newD); err != nil {
			return fmt.Errorf("revive %v: %w", k, err)
		}
	}

	if err := v.stack.Remove(oldD); err != nil {
		return fmt.Errorf("revive %v: %w", k, err)
	}
	return v.stack.Add(newD, val)
}

// --- batch variants: per-element, not atomic across the batch ---

func (v *View[K, V]) OldifyBatch(ks []K) []error {
	errs := make([]error, len(ks))
	for i, k := range ks {
		errs[i] = v.Oldify(k)
	}
	return errs
}

func (v *View[K, V]) ReviveBatch(ks []K) []error {
	errs := make([]error, len(ks))
	for i, k := range ks {
		errs[i] = v.Revive(k)
	}
	return errs
}

func (v *View[K, V]) RemoveBatch(ks []K) []error {
	errs := make([]error, len(ks))
	for i, k := range ks {
		errs[i] = v.Remove(k)
	}
	return errs
}

func (v *View[K, V]) RemoveOldBatch(ks []K) []error {
	errs := make([]error, len(ks))
	for i, k := range ks {
		errs[i] = v.RemoveOld(k)
	}
	return errs
}

func (v *View[K, V]) GetBatch(ks []K) ([]V, []error) {
	vals := make([]V, len(ks))
	errs := make([]error, len(ks))
	for i, k := range ks {
		vals[i], errs[i] = v.Get(k)
	}
	return vals, errs
}

func (v *View[K, V]) GetOldBatch(ks []K) ([]V, []error) {
	vals := make([]V, len(ks))
	errs := make([]error, len(ks))
	for i, k := range ks {
		vals[i], errs[i] = v.GetOld(k)
	}
	return vals, errs
}
