package task

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/oroshi/backoffice/internal/events"
	"github.com/oroshi/backoffice/internal/store"
)

// progressRecorder captures emitted progress events for assertions.
type progressRecorder struct {
	mu     sync.Mutex
	events []*events.ProgressEvent
}

func (r *progressRecorder) Emit(ctx context.Context, event *events.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *progressRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *progressRecorder) last() *events.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// ledgerFromEvent decodes the ledger snapshot carried by an event.
func ledgerFromEvent(event *events.ProgressEvent) (*Ledger, error) {
	var ledger Ledger
	if err := event.UnmarshalPayload(&ledger); err != nil {
		return nil, err
	}
	return &ledger, nil
}

// nopTransactor runs the function without a real transaction; handlers
// under test ignore the tx argument.
type nopTransactor struct{}

func (nopTransactor) InTx(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
