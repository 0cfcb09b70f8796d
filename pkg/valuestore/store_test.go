package valuestore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heaplattice/heapstore/internal/telemetry"
	"github.com/heaplattice/heapstore/pkg/arena"
)

type ticketKey string

func (k ticketKey) String() string { return string(k) }

type ticket struct {
	Title  string
	Status string
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
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func TestStoreAddGetRoundTrip(t *testing.T) {
	telemetry.Init(telemetry.LogLevelCounts, telemetry.NoOpObserver{})
	defer telemetry.Reset()

	a := newTestArena(t)
	s := New[ticketKey, ticket](a, 1, JSONCodec[ticket]{}, fmt.Sprintf("store:%p", a))
	defer s.Close()

	require.NoError(t, func() error {
		_, err := s.Add(ticketKey("TKT-1"), ticket{Title: "fix bug", Status: "open"})
		return err
	}())

	got, err := s.Get(ticketKey("TKT-1"))
	require.NoError(t, err)
	require.Equal(t, "fix bug", got.Title)

	snap := telemetry.GetTelemetry()[fmt.Sprintf("store:%p", a)]
	require.Equal(t, int64(2), snap.Count) // one Add, one Get
}

func TestStoreMemAndRemove(t *testing.T) {
	telemetry.Init(telemetry.LogLevelCounts, telemetry.NoOpObserver{})
	defer telemetry.Reset()

	a := newTestArena(t)
	a.SetAllowRemoves(true)
	s := New[ticketKey, ticket](a, 2, JSONCodec[ticket]{}, "store:mem-remove")
	defer s.Close()

	present, err := s.Mem(ticketKey("missing"))
	require.NoError(t, err)
	require.False(t, present)

	_, err = s.Add(ticketKey("present"), ticket{Title: "x"})
	require.NoError(t, err)

	present, err = s.Mem(ticketKey("present"))
	require.NoError(t, err)
	require.True(t, present)

	_, err = s.Remove(ticketKey("present"))
	require.NoError(t, err)

	present, _ = s.Mem(ticketKey("present"))
	require.False(t, present)
}

func TestStoreMove(t *testing.T) {
	telemetry.Init(telemetry.LogLevelCounts, telemetry.NoOpObserver{})
	defer telemetry.Reset()

	a := newTestArena(t)
	s := New[ticketKey, ticket](a, 3, JSONCodec[ticket]{}, "store:move")
	defer s.Close()

	_, err := s.Add(ticketKey("src"), ticket{Title: "movable"})
	require.NoError(t, err)

	require.NoError(t, s.Move(ticketKey("src"), ticketKey("dst")))

	got, err := s.Get(ticketKey("dst"))
	require.NoError(t, err)
	require.Equal(t, "movable", got.Title)
}

func TestProfiledCodecEnvelopeRoundTrip(t *testing.T) {
	telemetry.Init(telemetry.LogLevelCounts, telemetry.NoOpObserver{})
	defer telemetry.Reset()

	a := newTestArena(t)
	codec := NewProfiledCodec[ticket](JSONCodec[ticket]{}, 1, "profiled-test")
	s := New[ticketKey, ticket](a, 4, codec, "store:profiled")
	defer s.Close()

	_, err := s.Add(ticketKey("p1"), ticket{Title: "profiled value"})
	require.NoError(t, err)

	got, err := s.Get(ticketKey("p1"))
	require.NoError(t, err)
	require.Equal(t, "profiled value", got.Title)
}

func TestProfiledCodecDecodesUnenvelopedValues(t *testing.T) {
	codec := NewProfiledCodec[ticket](JSONCodec[ticket]{}, 0, "unenveloped-test")

	plain, err := JSONCodec[ticket]{}.Encode(ticket{Title: "plain"})
	require.NoError(t, err)

	got, err := codec.Decode(plain)
	require.NoError(t, err)
	require.Equal(t, "plain", got.Title)
}
