package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	Init(LogLevelCounts, NoOpObserver{})
	defer Reset()

	s := Register("store:tickets")
	s.Record("Ticket", 128)
	s.Record("Ticket", 256)
	s.Record("Comment", 64)

	snap := GetTelemetry()["store:tickets"]
	require.Equal(t, int64(3), snap.Count)
	require.Equal(t, int64(448), snap.Bytes)
	require.Equal(t, int64(2), snap.ByDescription["Ticket"].Count)
	require.Equal(t, int64(384), snap.ByDescription["Ticket"].Bytes)
}

func TestRecordNoOpAtLogLevelOff(t *testing.T) {
	Init(LogLevelOff, NoOpObserver{})
	defer Reset()

	s := Register("store:off")
	s.Record("X", 100)

	snap := GetTelemetry()["store:off"]
	require.Equal(t, int64(0), snap.Count)
}

func TestRegisterDuplicateNamePanics(t *testing.T) {
	Init(LogLevelCounts, NoOpObserver{})
	defer Reset()

	Register("dup")
	require.Panics(t, func() { Register("dup") })
}

func TestUnregisterRemovesSampler(t *testing.T) {
	Init(LogLevelCounts, NoOpObserver{})
	defer Reset()

	Register("gone")
	Unregister("gone")

	_, ok := GetTelemetry()["gone"]
	require.False(t, ok)
}

type captureObserver struct {
	events []Event
}

func (c *captureObserver) OnEvent(_ context.Context, e Event) {
	c.events = append(c.events, e)
}

func TestMultiObserverFansOutToAll(t *testing.T) {
	a, b := &captureObserver{}, &captureObserver{}
	m := NewMultiObserver(a, nil, b)

	m.OnEvent(context.Background(), Event{Type: EventCollect})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
}

func TestVerboseGate(t *testing.T) {
	Init(LogLevelVerbose, NoOpObserver{})
	defer Reset()

	s := Register("verbose-check")
	require.True(t, s.Verbose())
}
