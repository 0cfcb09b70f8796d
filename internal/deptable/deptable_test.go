package deptable

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heaplattice/heapstore/pkg/arena"
)

func newTestArena(t *testing.T) *arena.Arena {
	t.Helper()

	h, err := arena.Init(arena.Options{
		Candidates:   []string{t.TempDir()},
		SlotCapacity: 64,
		DepCapacity:  64,
		HeapBytes:    1 << 20,
	})
	require.NoError(t, err)

	a, err := arena.Connect(*h)
	require.NoError(t, err)
	require.NoError(t, a.SetAllowHashtableWrites(true))
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func digestOf(b byte) arena.Digest {
	var d arena.Digest
	d[0] = b
	return d
}

func seedEdges(t *testing.T, a *arena.Arena, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, a.AddEdge(digestOf(byte(i)), digestOf(byte(i+1))))
	}
}

func TestSaveLoadBlobRoundTrip(t *testing.T) {
	a := newTestArena(t)
	seedEdges(t, a, 5)

	path := filepath.Join(t.TempDir(), "deps.blob")
	n, err := New(a).SaveBlob(path, 42, false)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	b := newTestArena(t)
	table := New(b)
	require.NoError(t, table.LoadBlob(path, false))
	require.True(t, table.IsLoaded())

	for i := 0; i < 5; i++ {
		ok, err := b.HasEdge(digestOf(byte(i)), digestOf(byte(i+1)))
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestSaveBlobRejectsLoadedTableWithoutReset(t *testing.T) {
	a := newTestArena(t)
	seedEdges(t, a, 2)

	path := filepath.Join(t.TempDir(), "deps.blob")
	_, err := New(a).SaveBlob(path, 1, false)
	require.NoError(t, err)

	table := New(a)
	require.NoError(t, table.LoadBlob(path, false))

	_, err = table.SaveBlob(path, 2, false)
	require.ErrorIs(t, err, ErrTableIsLoaded)

	n, err := table.SaveBlob(path, 2, true)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestLoadBlobRejectsVersionMismatch(t *testing.T) {
	a := newTestArena(t)
	seedEdges(t, a, 1)

	path := filepath.Join(t.TempDir(), "deps.blob")
	_, err := New(a).SaveBlob(path, 1, false)
	require.NoError(t, err)

	// Corrupt the version field in place.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[4] = 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	b := newTestArena(t)
	err = New(b).LoadBlob(path, false)
	require.ErrorIs(t, err, ErrVersionMismatch)

	require.NoError(t, New(b).LoadBlob(path, true))
}

func TestSaveLoadSQLiteRoundTrip(t *testing.T) {
	a := newTestArena(t)
	seedEdges(t, a, 3)

	path := filepath.Join(t.TempDir(), "deps.sqlite")
	ctx := context.Background()

	n, err := New(a).SaveSQLite(ctx, path, 7, false)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	b := newTestArena(t)
	table := New(b)
	require.NoError(t, table.LoadSQLite(ctx, path, false))
	require.True(t, table.IsLoaded())

	for i := 0; i < 3; i++ {
		ok, err := b.HasEdge(digestOf(byte(i)), digestOf(byte(i+1)))
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestSaveSQLiteRejectsLoadedTable(t *testing.T) {
	a := newTestArena(t)
	seedEdges(t, a, 1)

	path := filepath.Join(t.TempDir(), "deps.sqlite")
	ctx := context.Background()

	_, err := New(a).SaveSQLite(ctx, path, 1, false)
	require.NoError(t, err)

	table := New(a)
	require.NoError(t, table.LoadSQLite(ctx, path, false))

	_, err = table.SaveSQLite(ctx, path, 2, true)
	require.ErrorIs(t, err, ErrTableIsLoaded)
}

func TestUpdateSQLiteMergesNewEdgesOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "deps.sqlite")

	a := newTestArena(t)
	seedEdges(t, a, 2)
	_, err := New(a).SaveSQLite(ctx, path, 1, false)
	require.NoError(t, err)

	table := New(a)
	require.NoError(t, table.LoadSQLite(ctx, path, false))

	require.NoError(t, a.AddEdge(digestOf(9), digestOf(10)))

	n, err := table.UpdateSQLite(ctx, path, 2, false)
	require.NoError(t, err)
	require.Equal(t, 3, n) // 2 already present (ignored) + 1 new

	b := newTestArena(t)
	require.NoError(t, New(b).LoadSQLite(ctx, path, false))
	ok, err := b.HasEdge(digestOf(9), digestOf(10))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUpdateSQLiteWithReplaceClearsStaleEdges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "deps.sqlite")

	a := newTestArena(t)
	seedEdges(t, a, 2)
	_, err := New(a).SaveSQLite(ctx, path, 1, false)
	require.NoError(t, err)

	table := New(a)
	require.NoError(t, table.LoadSQLite(ctx, path, false))

	b := newTestArena(t) // simulates a fresh arena with only one surviving edge
	require.NoError(t, b.AddEdge(digestOf(0), digestOf(1)))
	table.a = b

	n, err := table.UpdateSQLite(ctx, path, 2, true)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c := newTestArena(t)
	require.NoError(t, New(c).LoadSQLite(ctx, path, false))
	ok, err := c.HasEdge(digestOf(1), digestOf(2))
	require.NoError(t, err)
	require.False(t, ok)
}
