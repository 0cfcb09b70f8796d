package oldnew

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heaplattice/heapstore/pkg/arena"
	"github.com/heaplattice/heapstore/pkg/overlay"
)

var testViewSeq atomic.Int64

type memBase struct {
	data map[arena.Digest]string
}

func newMemBase() *memBase { return &memBase{data: make(map[arena.Digest]string)} }

func (b *memBase) Mem(d arena.Digest) (bool, error) {
	_, ok := b.data[d]
	return ok, nil
}

func (b *memBase) Get(d arena.Digest) (string, error) {
	v, ok := b.data[d]
	if !ok {
		return "", overlay.ErrNotPresent
	}
	return v, nil
}

func (b *memBase) Add(d arena.Digest, v string) error {
	b.data[d] = v
	return nil
}

func (b *memBase) Remove(d arena.Digest) error {
	delete(b.data, d)
	return nil
}

type userKey string

func (k userKey) String() string { return string(k) }

func newView() *View[userKey, string] {
	name := fmt.Sprintf("test-oldnew-%d", testViewSeq.Add(1))
	return NewView[userKey, string](overlay.NewStack[string](newMemBase(), name), 1)
}

func TestOldifyMovesBindingToOldNamespace(t *testing.T) {
	v := newView()
	require.NoError(t, v.Add("k1", "hello"))

	require.NoError(t, v.Oldify("k1"))

	present, err := v.Mem("k1")
	require.NoError(t, err)
	require.False(t, present)

	got, err := v.GetOld("k1")
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestReviveReversesOldify(t *testing.T) {
	v := newView()
	require.NoError(t, v.Add("k1", "hello"))
	require.NoError(t, v.Oldify("k1"))
	require.NoError(t, v.Revive("k1"))

	got, err := v.Get("k1")
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	present, err := v.MemOld("k1")
	require.NoError(t, err)
	require.False(t, present)
}

func TestReviveRemovesPreexistingNewBinding(t *testing.T) {
	v := newView()
	require.NoError(t, v.Add("k1", "old-value"))
	require.NoError(t, v.Oldify("k1"))
	require.NoError(t, v.Add("k1", "clobbering-new-value"))

	require.NoError(t, v.Revive("k1"))

	got, err := v.Get("k1")
	require.NoError(t, err)
	require.Equal(t, "old-value", got)
}

func TestNewAndOldNamespacesAreDisjoint(t *testing.T) {
	v := newView()
	require.NoError(t, v.Add("k1", "new-value"))
	require.NoError(t, v.stack.Add(v.oldDigest("k1"), "old-value"))

	newV, err := v.Get("k1")
	require.NoError(t, err)
	require.Equal(t, "new-value", newV)

	oldV, err := v.GetOld("k1")
	require.NoError(t, err)
	require.Equal(t, "old-value", oldV)
}

func TestBatchOperationsArePerElement(t *testing.T) {
	v := newView()
	require.NoError(t, v.Add("k1", "a"))
	require.NoError(t, v.Add("k2", "b"))

	errs := v.OldifyBatch([]userKey{"k1", "k2", "missing"})
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Error(t, errs[2])

	vals, getErrs := v.GetOldBatch([]userKey{"k1", "k2"})
	require.NoError(t, getErrs[0])
	require.NoError(t, getErrs[1])
	require.Equal(t, []string{"a", "b"}, vals)
}
