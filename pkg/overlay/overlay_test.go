package overlay

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/heaplattice/heapstore/pkg/arena"
)

var testStackSeq atomic.Int64

// newTestStack registers each Stack under a distinct telemetry name so
// concurrent or Reset-less test runs never collide on a duplicate
// registration.
func newTestStack(base Base[string]) *Stack[string] {
	return NewStack[string](base, fmt.Sprintf("test-overlay-%d", testStackSeq.Add(1)))
}

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
		return "", ErrNotPresent
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

func digestOf(b byte) arena.Digest {
	var d arena.Digest
	d[0] = b
	return d
}

func TestAddGetThroughEmptyStack(t *testing.T) {
	base := newMemBase()
	s := newTestStack(base)

	require.NoError(t, s.Add(digestOf(1), "v1"))

	got, err := s.Get(digestOf(1))
	require.NoError(t, err)
	require.Equal(t, "v1", got)
	require.Equal(t, "v1", base.data[digestOf(1)])
}

func TestPushAddShadowsBase(t *testing.T) {
	base := newMemBase()
	base.data[digestOf(1)] = "base-value"

	s := newTestStack(base)
	s.PushStack()
	require.NoError(t, s.Add(digestOf(1), "frame-value"))

	got, err := s.Get(digestOf(1))
	require.NoError(t, err)
	require.Equal(t, "frame-value", got)
	require.Equal(t, "base-value", base.data[digestOf(1)]) // base untouched until commit
}

func TestRemoveOnEmptyErrors(t *testing.T) {
	s := newTestStack(newMemBase())
	s.PushStack()

	err := s.Remove(digestOf(9))
	require.ErrorIs(t, err, ErrNotPresent)
}

func TestAddThenRemoveErasesEntry(t *testing.T) {
	s := newTestStack(newMemBase())
	s.PushStack()

	require.NoError(t, s.Add(digestOf(1), "v"))
	require.NoError(t, s.Remove(digestOf(1)))

	present, err := s.Mem(digestOf(1))
	require.NoError(t, err)
	require.False(t, present)
	require.Empty(t, s.frames[0].entries)
}

func TestDoubleRemoveErrors(t *testing.T) {
	base := newMemBase()
	base.data[digestOf(1)] = "x"

	s := newTestStack(base)
	s.PushStack()
	require.NoError(t, s.Remove(digestOf(1)))

	err := s.Remove(digestOf(1))
	require.ErrorIs(t, err, ErrDoubleRemove)
}

func TestCommitAddAppliesOneLevelDown(t *testing.T) {
	base := newMemBase()
	s := newTestStack(base)

	s.PushStack()
	require.NoError(t, s.Add(digestOf(1), "v"))
	require.NoError(t, s.Commit(digestOf(1)))

	require.Equal(t, "v", base.data[digestOf(1)])
	require.Empty(t, s.frames[0].entries)
}

func TestCommitChainingLeavesKeyAbsent(t *testing.T) {
	base := newMemBase()
	s := newTestStack(base)

	s.PushStack()
	require.NoError(t, s.Add(digestOf(1), "v"))
	s.PushStack()
	require.NoError(t, s.Remove(digestOf(1)))
	require.NoError(t, s.CommitAll())
	require.NoError(t, s.CommitAll())

	_, ok := base.data[digestOf(1)]
	require.False(t, ok)
}

func TestRevertAllUndoesFrame(t *testing.T) {
	base := newMemBase()
	base.data[digestOf(1)] = "base"

	s := newTestStack(base)
	s.PushStack()
	require.NoError(t, s.Add(digestOf(1), "shadow"))
	require.NoError(t, s.RevertAll())
	s.PopStack()

	got, err := s.Get(digestOf(1))
	require.NoError(t, err)
	require.Equal(t, "base", got)
}

func TestPopEmptyStackPanics(t *testing.T) {
	s := newTestStack(newMemBase())
	require.Panics(t, func() { s.PopStack() })
}

func TestMoveAtOverlayLevel(t *testing.T) {
	s := newTestStack(newMemBase())
	s.PushStack()
	require.NoError(t, s.Add(digestOf(1), "v"))

	require.NoError(t, s.Move(digestOf(1), digestOf(2)))

	present, _ := s.Mem(digestOf(1))
	require.False(t, present)
	got, err := s.Get(digestOf(2))
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestCommitAllFoldsEveryFrameIntoBase(t *testing.T) {
	base := newMemBase()
	s := newTestStack(base)

	s.PushStack()
	require.NoError(t, s.Add(digestOf(1), "one"))
	s.PushStack()
	require.NoError(t, s.Add(digestOf(2), "two"))
	require.NoError(t, s.Remove(digestOf(1))) // shadow-delete one level up

	require.NoError(t, s.CommitAll())
	s.PopStack()
	require.NoError(t, s.CommitAll())
	s.PopStack()

	want := map[arena.Digest]string{digestOf(2): "two"}
	if diff := cmp.Diff(want, base.data, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("base.data mismatch (-want +got):\n%s", diff)
	}
}
