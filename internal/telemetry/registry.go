package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// LogLevel gates how much a Sampler records. 0 disables sampling entirely;
// 1 records count/bytes; 2 records the same and makes Sampler.Verbose report
// true. No package in this module computes a reachable-byte estimate.
type LogLevel int

const (
	LogLevelOff     LogLevel = 0
	LogLevelCounts  LogLevel = 1
	LogLevelVerbose LogLevel = 2
)

// DescSample accumulates samples recorded under one value Description().
type DescSample struct {
	Count int64
	Bytes int64
}

// Snapshot is the folded view of one Sampler's recorded activity.
type Snapshot struct {
	Count         int64
	Bytes         int64
	ByDescription map[string]DescSample
}

// Sampler is registered by exactly one value-store/overlay-stack/cache
// instance and records the sizes it moves, tagged by the value type's
// Description().
type Sampler struct {
	name  string
	level LogLevel

	mu   sync.Mutex
	data map[string]DescSample
}

func newSampler(name string, level LogLevel) *Sampler {
	return &Sampler{name: name, level: level, data: make(map[string]DescSample)}
}

// Record adds one sample of n bytes under description. A no-op at LogLevelOff.
func (s *Sampler) Record(description string, n int64) {
	if s.level == LogLevelOff {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.data[description]
	cur.Count++
	cur.Bytes += n
	s.data[description] = cur
}

// Verbose reports whether the sampler is at LogLevelVerbose or above.
// Nothing in this module calls it to gate extra sampling.
func (s *Sampler) Verbose() bool {
	return s.level >= LogLevelVerbose
}

func (s *Sampler) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{ByDescription: make(map[string]DescSample, len(s.data))}
	for k, v := range s.data {
		snap.ByDescription[k] = v
		snap.Count += v.Count
		snap.Bytes += v.Bytes
	}
	return snap
}

// Registry is the process-wide sampler registry, explicitly Init/Reset like
// the rest of this module's global state (pkg/arena's fileRegistry is the
// other process-wide singleton). It guards a plain map with a mutex.
type Registry struct {
	mu       sync.Mutex
	samplers map[string]*Sampler
	level    LogLevel
	observer Observer
}

var global = &Registry{observer: NoOpObserver{}}

// Init installs the process-wide logging level and event observer. Safe to
// call again to reconfigure. Init also drops every registered Sampler: a
// Sampler keeps the level it was registered with, so only Samplers
// registered after Init use the new level.
func Init(level LogLevel, observer Observer) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.level = level
	if observer == nil {
		observer = NoOpObserver{}
	}
	global.observer = observer
	global.samplers = make(map[string]*Sampler)
}

// Reset clears every registered sampler, used between test cases.
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.samplers = make(map[string]*Sampler)
}

// Register adds a new named Sampler. Panics on a duplicate name: a
// colliding registration is a programmer error for a process-wide
// singleton.
func Register(name string) *Sampler {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.samplers == nil {
		global.samplers = make(map[string]*Sampler)
	}
	if _, exists := global.samplers[name]; exists {
		panic(fmt.Sprintf("telemetry: sampler %q already registered", name))
	}

	s := newSampler(name, global.level)
	global.samplers[name] = s

	global.observer.OnEvent(context.Background(), Event{
		Type:   EventSamplerRegistered,
		Level:  LevelVerbose,
		Source: name,
	})

	return s
}

// Unregister removes a previously registered Sampler, e.g. on Store.Close.
func Unregister(name string) {
	global.mu.Lock()
	defer global.mu.Unlock()

	delete(global.samplers, name)

	global.observer.OnEvent(context.Background(), Event{
		Type:   EventSamplerClosed,
		Level:  LevelVerbose,
		Source: name,
	})
}

// Emit routes an ad-hoc event (not tied to a Sampler, e.g. Collect or a
// writer-lock contention) through the registry's observer.
func Emit(event Event) {
	global.mu.Lock()
	obs := global.observer
	global.mu.Unlock()
	obs.OnEvent(context.Background(), event)
}

// GetTelemetry folds every registered Sampler into one snapshot map keyed by
// sampler name.
func GetTelemetry() map[string]Snapshot {
	global.mu.Lock()
	samplers := make([]*Sampler, 0, len(global.samplers))
	names := make([]string, 0, len(global.samplers))
	for name, s := range global.samplers {
		names = append(names, name)
		samplers = append(samplers, s)
	}
	global.mu.Unlock()

	out := make(map[string]Snapshot, len(samplers))
	for i, s := range samplers {
		out[names[i]] = s.snapshot()
	}
	return out
}

// DefaultLogger is the slog.Logger used by NewSlogObserver when a caller
// doesn't supply their own.
func DefaultLogger() *slog.Logger { return slog.Default() }
