package cachedstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heaplattice/heapstore/internal/telemetry"
	"github.com/heaplattice/heapstore/pkg/arena"
	"github.com/heaplattice/heapstore/pkg/valuestore"
)

type ticketKey string

func (k ticketKey) String() string { return string(k) }

type ticket struct {
	Title string
}

func (ticket) Description() string { return "Ticket" }

func newTestArena(t *testing.T) *arena.Arena {
	t.Helper()

	h, err := arena.Init(arena.Options{
		Candidates:   []string{t.TempDir()},
		SlotCapacity: 64,
		DepCapacity:  8,
		HeapBytes:    1 << 20,
	})
	require.NoError(t, err)

	a, err := arena.Connect(*h)
	require.NoError(t, err)
	require.NoError(t, a.SetAllowHashtableWrites(true))
	a.SetAllowRemoves(true)
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func newTestStore(t *testing.T, name string) *Store[ticketKey, ticket] {
	t.Helper()
	telemetry.Init(telemetry.LogLevelCounts, telemetry.NoOpObserver{})
	t.Cleanup(telemetry.Reset)

	a := newTestArena(t)
	imm := valuestore.New[ticketKey, ticket](a, 1, valuestore.JSONCodec[ticket]{}, name+":immediate")
	s := New[ticketKey, ticket](imm, 1, name+":cache", 4, 4)
	t.Cleanup(s.Close)
	return s
}

func TestGetPopulatesCacheOnMiss(t *testing.T) {
	s := newTestStore(t, "get-populates")

	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "x"}))

	v, ok := s.cache.Get(ticketKey("a"))
	require.True(t, ok)
	require.Equal(t, "x", v.Title)

	// Drop the cached entry, then confirm Get reads through the view and
	// repopulates the cache.
	s.cache.Remove(ticketKey("a"))
	got, err := s.Get(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "x", got.Title)

	_, ok = s.cache.Get(ticketKey("a"))
	require.True(t, ok) // Get repopulated it
}

func TestWriteAroundSkipsCache(t *testing.T) {
	s := newTestStore(t, "write-around")

	require.NoError(t, s.WriteAround(ticketKey("a"), ticket{Title: "x"}))

	_, ok := s.cache.Get(ticketKey("a"))
	require.False(t, ok)

	got, err := s.Get(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "x", got.Title)
}

func TestGetOldAndMemOldBypassCache(t *testing.T) {
	s := newTestStore(t, "old-bypass")

	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "x"}))
	require.NoError(t, s.Oldify(ticketKey("a")))

	_, ok := s.cache.Get(ticketKey("a"))
	require.False(t, ok) // Oldify invalidated it

	present, err := s.MemOld(ticketKey("a"))
	require.NoError(t, err)
	require.True(t, present)

	got, err := s.GetOld(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "x", got.Title)

	_, ok = s.cache.Get(ticketKey("a"))
	require.False(t, ok) // GetOld never touches the cache
}

func TestOldifyThenReviveRestoresNewNamespace(t *testing.T) {
	s := newTestStore(t, "oldify-revive")

	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "x"}))
	require.NoError(t, s.Oldify(ticketKey("a")))

	present, err := s.Mem(ticketKey("a"))
	require.NoError(t, err)
	require.False(t, present)

	require.NoError(t, s.Revive(ticketKey("a")))

	got, err := s.Get(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "x", got.Title)
}

func TestOldifyBatchInvalidatesEachKey(t *testing.T) {
	s := newTestStore(t, "oldify-batch")

	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "a"}))
	require.NoError(t, s.Add(ticketKey("b"), ticket{Title: "b"}))

	errs := s.OldifyBatch([]ticketKey{"a", "b"})
	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, k := range []ticketKey{"a", "b"} {
		_, ok := s.cache.Get(k)
		require.False(t, ok)
	}
}

func TestPushStackClearsCache(t *testing.T) {
	s := newTestStore(t, "push-clears")

	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "x"}))
	_, ok := s.cache.Get(ticketKey("a"))
	require.True(t, ok)

	s.PushStack()

	_, ok = s.cache.Get(ticketKey("a"))
	require.False(t, ok)

	// value still reachable through the (now-pushed) stack
	got, err := s.Get(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "x", got.Title)
}

func TestPopStackClearsCacheAndRevealsBase(t *testing.T) {
	s := newTestStore(t, "pop-clears")

	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "base"}))
	s.PushStack()
	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "frame"}))

	got, err := s.Get(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "frame", got.Title)

	s.PopStack()

	_, ok := s.cache.Get(ticketKey("a"))
	require.False(t, ok)

	got, err = s.Get(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "base", got.Title)
}

func TestCommitLeavesVisibleValueUnchanged(t *testing.T) {
	s := newTestStore(t, "commit-unchanged")

	s.PushStack()
	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "x"}))

	got, err := s.Get(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "x", got.Title)

	require.NoError(t, s.Commit(ticketKey("a")))

	got, err = s.Get(ticketKey("a"))
	require.NoError(t, err)
	require.Equal(t, "x", got.Title)
}

func TestRemoveEvictsFromCache(t *testing.T) {
	s := newTestStore(t, "remove-evicts")

	require.NoError(t, s.Add(ticketKey("a"), ticket{Title: "x"}))
	require.NoError(t, s.Remove(ticketKey("a")))

	_, ok := s.cache.Get(ticketKey("a"))
	require.False(t, ok)

	present, err := s.Mem(ticketKey("a"))
	require.NoError(t, err)
	require.False(t, present)
}
