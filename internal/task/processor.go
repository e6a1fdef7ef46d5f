package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Processor applies a handler to one chunk's items with idempotent,
// resumable semantics. It knows nothing about ledgers; its world is a
// single chunk and the per-item completion records for it.
type Processor struct {
	items  ItemStore
	tx     Transactor
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(items ItemStore, tx Transactor, logger *slog.Logger) *Processor {
	return &Processor{
		items:  items,
		tx:     tx,
		logger: logger.With("component", "item_processor"),
	}
}

// ProcessChunk iterates the chunk's items in order, invoking the
// handler for each inside its own transaction. Items already recorded
// finished are skipped; items recorded errored are retried. The first
// unrecovered failure is recorded, aborts the remaining items, and is
// returned as an *ItemError so the caller leaves the message for
// redelivery.
//
// System-internal chunks skip all completion bookkeeping: they run
// every item but keep no records and therefore no resume point.
func (p *Processor) ProcessChunk(ctx context.Context, env *Envelope, handler Handler) error {
	log := p.logger.With(
		"correlation_id", env.CorrelationID,
		"chunk_id", env.ChunkID,
	)

	existing := make(map[int]ItemRecord)
	if !env.SystemInternal {
		records, err := p.items.ListChunkItems(ctx, env.CorrelationID, env.ChunkID)
		if err != nil {
			return fmt.Errorf("failed to load item records for chunk %d: %w", env.ChunkID, err)
		}
		for _, record := range records {
			existing[record.Seq] = record
		}
	}

	for _, item := range env.Items {
		if record, ok := existing[item.Seq]; ok {
			switch record.Status {
			case ItemStatusFinished:
				log.Debug("skipping already finished item", "seq", item.Seq)
				continue
			case ItemStatusErrored:
				log.Info("retrying previously failed item", "seq", item.Seq)
			}
		}

		start := time.Now()
		err := p.tx.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return handler(ctx, tx, env.Scope, item.Payload)
		})
		elapsed := time.Since(start)

		if err != nil {
			log.Error("item processing failed",
				"seq", item.Seq,
				"process_time", elapsed,
				"error", err)

			if !env.SystemInternal {
				record := ItemRecord{
					CorrelationID:     env.CorrelationID,
					Seq:               item.Seq,
					ChunkID:           env.ChunkID,
					Status:            ItemStatusErrored,
					ProcessTime:       elapsed,
					StatusDescription: fmt.Sprintf("item processing failed: %v", err),
				}
				if upsertErr := p.items.UpsertItem(ctx, &record); upsertErr != nil {
					log.Error("failed to record item failure",
						"seq", item.Seq,
						"error", upsertErr)
				}
			}

			return &ItemError{Seq: item.Seq, Err: err}
		}

		if !env.SystemInternal {
			record := ItemRecord{
				CorrelationID: env.CorrelationID,
				Seq:           item.Seq,
				ChunkID:       env.ChunkID,
				Status:        ItemStatusFinished,
				ProcessTime:   elapsed,
			}
			if upsertErr := p.items.UpsertItem(ctx, &record); upsertErr != nil {
				// The handler committed but the completion record did
				// not stick. Failing the chunk here means a redelivery
				// re-runs this item, so surface it loudly.
				log.Error("item succeeded but recording completion failed",
					"seq", item.Seq,
					"error", upsertErr)
				return &ItemError{
					Seq: item.Seq,
					Err: fmt.Errorf("item succeeded but recording completion failed: %w", upsertErr),
				}
			}
		}
	}

	return nil
}
