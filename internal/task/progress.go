package task

import (
	"context"

	"github.com/oroshi/backoffice/internal/events"
	"github.com/oroshi/backoffice/internal/platform/logger"
)

// emitProgress pushes a ledger snapshot to the progress feed. Feed
// failures are logged and swallowed: a lost live update must never
// fail the ledger mutation that produced it.
func emitProgress(ctx context.Context, emitter ProgressEmitter, ledger *Ledger) {
	if emitter == nil || ledger == nil {
		return
	}
	log := logger.FromContext(ctx)

	event, err := events.NewProgressEvent(ledger.StoreID, ledger)
	if err != nil {
		log.Error("failed to build progress event",
			"correlation_id", ledger.CorrelationID,
			"error", err)
		return
	}

	if err := emitter.Emit(ctx, event); err != nil {
		log.Warn("failed to emit progress event",
			"correlation_id", ledger.CorrelationID,
			"status", ledger.Status,
			"error", err)
	}
}
