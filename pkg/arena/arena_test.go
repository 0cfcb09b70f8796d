package arena

import (
	"crypto/md5"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func digestOf(s string) Digest {
	return Digest(md5.Sum([]byte(s)))
}

func newTestArena(t *testing.T) *Arena {
	t.Helper()

	h, err := Init(Options{
		Candidates:   []string{t.TempDir()},
		MinFreeBytes: 0,
		SlotCapacity: 64,
		DepCapacity:  32,
		HeapBytes:    1 << 20,
	})
	require.NoError(t, err)

	a, err := Connect(*h)
	require.NoError(t, err)
	require.NoError(t, a.SetAllowHashtableWrites(true))
	a.SetAllowRemoves(true)

	t.Cleanup(func() { _ = a.Close() })

	return a
}

func TestAddGetRoundTrip(t *testing.T) {
	a := newTestArena(t)
	d := digestOf("hello")

	res, err := a.Add(d, []byte("hello world"))
	require.NoError(t, err)
	require.True(t, res.Inserted)

	present, err := a.Mem(d)
	require.NoError(t, err)
	require.True(t, present)

	got, err := a.Get(d)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestAddIsIdempotent(t *testing.T) {
	a := newTestArena(t)
	d := digestOf("k")

	res1, err := a.Add(d, []byte("v1"))
	require.NoError(t, err)
	require.True(t, res1.Inserted)

	res2, err := a.Add(d, []byte("v2-different-length"))
	require.NoError(t, err)
	require.False(t, res2.Inserted)

	got, err := a.Get(d)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)
}

func TestGetAbsentReturnsErrNotPresent(t *testing.T) {
	a := newTestArena(t)
	_, err := a.Get(digestOf("missing"))
	require.ErrorIs(t, err, ErrNotPresent)
}

func TestRemove(t *testing.T) {
	a := newTestArena(t)
	d := digestOf("r")

	_, err := a.Add(d, []byte("payload"))
	require.NoError(t, err)

	freed, err := a.Remove(d)
	require.NoError(t, err)
	require.Greater(t, freed, 0)

	present, err := a.Mem(d)
	require.NoError(t, err)
	require.False(t, present)

	_, err = a.Remove(d)
	require.ErrorIs(t, err, ErrNotPresent)
}

func TestRemoveRequiresAllowRemoves(t *testing.T) {
	a := newTestArena(t)
	a.SetAllowRemoves(false)

	d := digestOf("x")
	_, err := a.Add(d, []byte("v"))
	require.NoError(t, err)

	_, err = a.Remove(d)
	require.ErrorIs(t, err, ErrRemovesDisabled)
}

func TestMove(t *testing.T) {
	a := newTestArena(t)
	src, dst := digestOf("src"), digestOf("dst")

	_, err := a.Add(src, []byte("moveme"))
	require.NoError(t, err)

	require.NoError(t, a.Move(src, dst))

	present, _ := a.Mem(src)
	require.False(t, present)

	got, err := a.Get(dst)
	require.NoError(t, err)
	require.Equal(t, []byte("moveme"), got)
}

func TestMoveRejectsExistingDestination(t *testing.T) {
	a := newTestArena(t)
	src, dst := digestOf("src2"), digestOf("dst2")

	_, err := a.Add(src, []byte("a"))
	require.NoError(t, err)
	_, err = a.Add(dst, []byte("b"))
	require.NoError(t, err)

	err = a.Move(src, dst)
	require.ErrorIs(t, err, ErrAlreadyPresent)
}

func TestCollectCompactsHeap(t *testing.T) {
	a := newTestArena(t)

	var digests []Digest
	for i := range 10 {
		d := digestOf(string(rune('a' + i)))
		digests = append(digests, d)
		_, err := a.Add(d, []byte("some payload that repeats to compress well well well"))
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		_, err := a.Remove(digests[i])
		require.NoError(t, err)
	}

	wastedBefore := a.HeapWasted()
	require.Greater(t, wastedBefore, uint64(0))

	require.NoError(t, a.Collect())
	require.Equal(t, uint64(0), a.HeapWasted())

	for i := 5; i < 10; i++ {
		got, err := a.Get(digests[i])
		require.NoError(t, err)
		require.Contains(t, string(got), "well")
	}
}

func TestDependencyEdges(t *testing.T) {
	a := newTestArena(t)
	from, to := digestOf("a"), digestOf("b")

	ok, err := a.HasEdge(from, to)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, a.AddEdge(from, to))
	require.NoError(t, a.AddEdge(from, to)) // idempotent

	ok, err = a.HasEdge(from, to)
	require.NoError(t, err)
	require.True(t, ok)

	var collected [][2]Digest
	a.Edges(func(f, t2 Digest) { collected = append(collected, [2]Digest{f, t2}) })
	require.Len(t, collected, 1)
	require.Equal(t, from, collected[0][0])
	require.Equal(t, to, collected[0][1])
}

func TestWritesDisabledByDefaultOnFreshHandle(t *testing.T) {
	h, err := Init(Options{
		Candidates:   []string{t.TempDir()},
		SlotCapacity: 16,
		DepCapacity:  8,
		HeapBytes:    1 << 16,
	})
	require.NoError(t, err)

	a, err := Connect(*h)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Add(digestOf("x"), []byte("v"))
	require.ErrorIs(t, err, ErrWritesDisabled)
}

func TestConnectRejectsBadMagic(t *testing.T) {
	h, err := Init(Options{
		Candidates:   []string{t.TempDir()},
		SlotCapacity: 16,
		DepCapacity:  8,
		HeapBytes:    1 << 16,
	})
	require.NoError(t, err)

	bad := []byte("XXXX")
	if h.Path == "" {
		_, err = unix.Pwrite(h.FD, bad, offMagic)
		require.NoError(t, err)
	} else {
		f, err := os.OpenFile(h.Path, os.O_RDWR, 0)
		require.NoError(t, err)
		_, err = f.WriteAt(bad, offMagic)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	_, err = Connect(*h)
	require.ErrorIs(t, err, ErrIncompatible)
}
