package events

import (
	"context"
	"log/slog"
	"sync"
)

// Emitter fans a progress event out to every registered sink.
// Sink failures are logged and do not prevent delivery to the
// remaining sinks; a lost progress update must never fail the
// task mutation that produced it.
type Emitter struct {
	sinks  []Sink
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewEmitter creates a new Emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		sinks:  make([]Sink, 0),
		logger: logger.With("component", "progress_emitter"),
	}
}

// RegisterSink adds a sink to receive future events.
func (e *Emitter) RegisterSink(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
	e.logger.Debug("registered progress sink", "sink_count", len(e.sinks))
}

// Emit publishes the given event to all registered sinks. The first
// error encountered is returned after all sinks have been attempted.
func (e *Emitter) Emit(ctx context.Context, event *ProgressEvent) error {
	e.mu.RLock()
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.RUnlock()

	if len(sinks) == 0 {
		e.logger.Warn("no sinks registered for progress event",
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}

	var firstErr error
	for i, sink := range sinks {
		if err := sink.Publish(ctx, event); err != nil {
			e.logger.Error("sink failed to publish progress event",
				"error", err,
				"sink_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
