// Package events defines the structured event sink contract used by the
// sync engine for configuration-error reporting.
//
// Sinks are fire-and-forget: recording an event must never fail back into
// the sync path. Event persistence is out of scope; the default sink logs.
package events

import (
	"context"
	"sync"

	"github.com/realmsync/realmsync/internal/logger"
)

// Kind classifies an event.
type Kind string

const (
	// KindConfigurationError marks isolated per-mapping or per-principal
	// failures that operators need to act on.
	KindConfigurationError Kind = "configuration_error"

	// KindSyncStatus marks run-level status transitions.
	KindSyncStatus Kind = "sync_status"
)

// Sink receives structured events. Implementations must not panic and must
// not return errors into the caller.
type Sink interface {
	Record(ctx context.Context, kind Kind, message string, fields map[string]any)
}

// LogSink writes events to the structured log.
type LogSink struct{}

var _ Sink = LogSink{}

// Record logs the event. Configuration errors log at warn level so they
// stand out in default output.
func (LogSink) Record(ctx context.Context, kind Kind, message string, fields map[string]any) {
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, "kind", string(kind))
	for k, v := range fields {
		args = append(args, k, v)
	}
	if kind == KindConfigurationError {
		logger.Warn(message, args...)
		return
	}
	logger.Info(message, args...)
}

// Event is a recorded event, used by the Recorder test sink.
type Event struct {
	Kind    Kind
	Message string
	Fields  map[string]any
}

// Recorder is an in-memory Sink for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

var _ Sink = (*Recorder)(nil)

// Record appends the event.
func (r *Recorder) Record(ctx context.Context, kind Kind, message string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: kind, Message: message, Fields: fields})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByKind returns recorded events of the given kind.
func (r *Recorder) ByKind(kind Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
