package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oroshi/backoffice/internal/platform/logger"
	"github.com/oroshi/backoffice/internal/store"
)

// receiveBackoff is the pause after a transport receive error before
// the loop tries again.
const receiveBackoff = time.Second

// Consumer is the long-running loop for one worker: it pulls chunks
// from the worker's queue, advances the ledger lifecycle, runs the
// idempotent item processor, settles the message, and throttles
// between iterations using the kind's cooldown table.
type Consumer struct {
	worker    string
	catalog   *Catalog
	registry  *Registry
	queue     Queue
	ledgers   LedgerStore
	items     ItemStore
	processor *Processor
	progress  ProgressEmitter
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration)
}

// NewConsumer creates a Consumer for the given worker. The registry
// should have been validated against the catalog beforehand; a gap
// found at runtime is treated as fatal per message.
func NewConsumer(
	worker string,
	catalog *Catalog,
	registry *Registry,
	queue Queue,
	ledgers LedgerStore,
	items ItemStore,
	processor *Processor,
	progress ProgressEmitter,
	log *slog.Logger,
) *Consumer {
	return &Consumer{
		worker:    worker,
		catalog:   catalog,
		registry:  registry,
		queue:     queue,
		ledgers:   ledgers,
		items:     items,
		processor: processor,
		progress:  progress,
		logger:    log.With("component", "task_consumer", "worker", worker),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Run consumes chunks until ctx is cancelled. It returns nil on clean
// shutdown; the loop itself never terminates on processing failures.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		delivery, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("failed to receive from queue", "error", err)
			c.sleep(ctx, receiveBackoff)
			continue
		}
		if delivery == nil {
			// Transport-level idle timeout; nothing to do this round.
			continue
		}

		cooldown := c.handleDelivery(ctx, delivery)

		// The cooldown applies after every iteration regardless of
		// outcome, evaluated fresh so the rate adapts across the day.
		c.sleep(ctx, cooldown)
	}
}

// handleDelivery processes one received chunk end to end and returns
// the cooldown to sleep afterwards.
func (c *Consumer) handleDelivery(ctx context.Context, delivery Delivery) time.Duration {
	env := delivery.Envelope()
	log := c.logger.With(
		"kind", env.Kind,
		"correlation_id", env.CorrelationID,
		"chunk_id", env.ChunkID,
		"system_internal", env.SystemInternal,
	)
	ctx = logger.WithLogger(ctx, log)

	cooldown := c.cooldownFor(env)

	handler, err := c.registry.Resolve(env.Kind)
	if err != nil {
		// Deployment error: surfaced to the operator, message left for
		// redelivery, no bookkeeping.
		log.Error("no handler registered, message requires operator intervention", "error", err)
		if retryErr := delivery.Retry(ctx); retryErr != nil {
			log.Error("failed to release message", "error", retryErr)
		}
		return cooldown
	}

	ref := newLedgerRef(c.ledgers, env.CorrelationID)

	if !env.SystemInternal {
		proceed := c.prepareLedger(ctx, delivery, ref, log)
		if !proceed {
			return cooldown
		}
	}

	if err := c.processor.ProcessChunk(ctx, env, handler); err != nil {
		c.handleChunkFailure(ctx, delivery, env, err, log)
		return cooldown
	}

	c.handleChunkSuccess(ctx, delivery, env, log)
	return cooldown
}

// prepareLedger loads the chunk's ledger and advances it to processing
// on the batch's first chunk. It settles the delivery itself and
// returns false when the chunk must not be processed.
func (c *Consumer) prepareLedger(ctx context.Context, delivery Delivery, ref *ledgerRef, log *slog.Logger) bool {
	ledger, err := ref.Get(ctx)
	if err != nil {
		if store.IsNotFoundError(err) {
			// The ledger row will never appear; without it the chunk
			// cannot be bookkept, so park it on the dead-letter lane.
			log.Error("ledger missing for chunk, dead-lettering", "error", err)
			if dlErr := delivery.DeadLetter(ctx); dlErr != nil {
				log.Error("failed to dead-letter message", "error", dlErr)
			}
			return false
		}
		log.Error("failed to load ledger", "error", err)
		if retryErr := delivery.Retry(ctx); retryErr != nil {
			log.Error("failed to release message", "error", retryErr)
		}
		return false
	}

	if ledger.Status == LedgerStatusErrored {
		// Errored is terminal: redelivered chunks of a dead batch go
		// straight to the dead-letter lane.
		log.Warn("chunk belongs to an errored ledger, dead-lettering")
		if dlErr := delivery.DeadLetter(ctx); dlErr != nil {
			log.Error("failed to dead-letter message", "error", dlErr)
		}
		return false
	}

	if ledger.Status == LedgerStatusQueued && ledger.ProcessedChunks == 0 {
		updated, err := c.ledgers.MarkProcessing(ctx, ledger.CorrelationID, c.now().UTC())
		if err != nil {
			log.Error("failed to mark ledger processing", "error", err)
			if retryErr := delivery.Retry(ctx); retryErr != nil {
				log.Error("failed to release message", "error", retryErr)
			}
			return false
		}
		ref.set(updated)
		emitProgress(ctx, c.progress, updated)
	}

	return true
}

// handleChunkSuccess advances the ledger counters, finishes the batch
// when this was the last chunk, and deletes the message.
func (c *Consumer) handleChunkSuccess(ctx context.Context, delivery Delivery, env *Envelope, log *slog.Logger) {
	if !env.SystemInternal {
		ledger, err := c.ledgers.IncrementProcessed(ctx, env.CorrelationID)
		if err != nil {
			// Item records are in place, so a redelivery skips the
			// whole chunk and only retries this increment.
			log.Error("failed to increment processed count", "error", err)
			if retryErr := delivery.Retry(ctx); retryErr != nil {
				log.Error("failed to release message", "error", retryErr)
			}
			return
		}

		if ledger.ProcessedChunks == ledger.TotalChunks && ledger.Status != LedgerStatusFinished {
			finished, err := c.ledgers.MarkFinished(ctx, env.CorrelationID, c.now().UTC())
			if err != nil {
				log.Error("failed to mark ledger finished", "error", err)
			} else {
				ledger = finished
				// The per-item audit trail is only needed while the
				// batch is incomplete.
				if delErr := c.items.DeleteLedgerItems(ctx, env.CorrelationID); delErr != nil {
					log.Error("failed to purge item records", "error", delErr)
				}
				log.Info("task batch finished", "total_chunks", ledger.TotalChunks)
			}
		}

		emitProgress(ctx, c.progress, ledger)
	}

	if err := delivery.Ack(ctx); err != nil {
		log.Error("failed to delete message after success", "error", err)
	}
	log.Info("chunk processed")
}

// handleChunkFailure records the failure on the ledger and either
// leaves the message for redelivery or, past the error threshold,
// marks the ledger errored and dead-letters the message.
func (c *Consumer) handleChunkFailure(ctx context.Context, delivery Delivery, env *Envelope, procErr error, log *slog.Logger) {
	var itemErr *ItemError
	if errors.As(procErr, &itemErr) {
		log = log.With("failed_seq", itemErr.Seq)
	}
	log.Error("chunk processing failed", "error", procErr)

	if env.SystemInternal {
		// System-internal batches carry no ledger; their failures are
		// only observable here in the logs.
		if retryErr := delivery.Retry(ctx); retryErr != nil {
			log.Error("failed to release message", "error", retryErr)
		}
		return
	}

	ledger, err := c.ledgers.IncrementErrorCount(ctx, env.CorrelationID)
	if err != nil {
		log.Error("failed to increment error count", "error", err)
		if retryErr := delivery.Retry(ctx); retryErr != nil {
			log.Error("failed to release message", "error", retryErr)
		}
		return
	}

	if ledger.ErrorCount > ErrorThreshold {
		description := fmt.Sprintf("task processing failed after %d attempts: %v", ledger.ErrorCount, procErr)
		errored, markErr := c.ledgers.MarkErrored(ctx, env.CorrelationID, c.now().UTC(), description)
		if markErr != nil {
			log.Error("failed to mark ledger errored", "error", markErr)
		} else {
			ledger = errored
		}
		emitProgress(ctx, c.progress, ledger)

		// Terminal: stop redelivery by parking the message.
		log.Error("error threshold exceeded, ledger errored and message dead-lettered",
			"error_count", ledger.ErrorCount)
		if dlErr := delivery.DeadLetter(ctx); dlErr != nil {
			log.Error("failed to dead-letter message", "error", dlErr)
		}
		return
	}

	if retryErr := delivery.Retry(ctx); retryErr != nil {
		log.Error("failed to release message", "error", retryErr)
	}
}

// cooldownFor looks up the kind's throttle for the current time of day.
// Unknown kinds throttle at zero; the registry already rejects them.
func (c *Consumer) cooldownFor(env *Envelope) time.Duration {
	def, err := c.catalog.Lookup(env.Worker, env.Kind)
	if err != nil {
		return 0
	}
	return def.CooldownAt(c.now())
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
