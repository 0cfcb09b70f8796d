package cachedstore

import (
	"fmt"

	"github.com/heaplattice/heapstore/pkg/arena"
	"github.com/heaplattice/heapstore/pkg/valuestore"
)

// storeBase adapts a *valuestore.Store[K,V] to overlay.Base[V] by talking to
// it purely in terms of already-computed digests, so overlay's stack (and,
// through it, pkg/oldnew's namespace split) never goes through
// valuestore.Store's own key.Domain — oldnew.View computes the new/old
// digest itself and overlay must write to exactly that digest, not to
// whatever Store.digest(k) would recompute for the bare key.
type storeBase[K fmt.Stringer, V valuestore.Value] struct {
	store *valuestore.Store[K, V]
}

func (b storeBase[K, V]) Mem(d arena.Digest) (bool, error) { return b.store.MemDigest(d) }
func (b storeBase[K, V]) Get(d arena.Digest) (V, error)    { return b.store.GetDigest(d) }

func (b storeBase[K, V]) Add(d arena.Digest, v V) error {
	_, err := b.store.AddDigest(d, v)
	return err
}

func (b storeBase[K, V]) Remove(d arena.Digest) error {
	_, err := b.store.RemoveDigest(d)
	return err
}
