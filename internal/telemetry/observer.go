// Package telemetry provides the process-wide sampling registry and event
// fan-out used by pkg/valuestore, pkg/overlay, and pkg/localcache to report
// what they're doing without depending on any one sink concretely.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Level mirrors OTel SeverityNumber ranges so events translate to an OTel
// collector without field remapping.
type Level int

const (
	LevelVerbose Level = 5
	LevelInfo    Level = 9
	LevelWarning Level = 13
	LevelError   Level = 17
)

func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType identifies the kind of event a sampler or the registry emits.
type EventType string

const (
	EventSamplerRegistered EventType = "telemetry.sampler.registered"
	EventSamplerClosed     EventType = "telemetry.sampler.closed"
	EventCollect           EventType = "telemetry.arena.collect"
	EventWriterActive      EventType = "telemetry.arena.writer_active"
	EventCandidateFailed   EventType = "telemetry.arena.candidate_failed"
)

// Event is an observability event emitted by a Sampler or the Registry.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events for logging, tracing, or metrics.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
