package task

import (
	"context"
	"time"

	"github.com/oroshi/backoffice/internal/events"
	"github.com/oroshi/backoffice/internal/store"
)

// Delivery is one received chunk plus the transport operations that
// settle it. Exactly one of Ack, Retry or DeadLetter should be called
// per delivery.
type Delivery interface {
	// Envelope returns the decoded chunk.
	Envelope() *Envelope

	// Ack deletes the message from the queue after successful processing.
	Ack(ctx context.Context) error

	// Retry releases the message for redelivery. Item-level completion
	// records make the redelivery resume from the first unfinished item.
	Retry(ctx context.Context) error

	// DeadLetter moves the message to the dead-letter lane and removes
	// it from the live queue. Used when the ledger is terminally errored.
	DeadLetter(ctx context.Context) error
}

// Dispatcher is the publish half of a Queue. The publisher and the
// delay scheduler depend on this half only, which lets one process
// route chunks of any worker onto the right transport queue.
type Dispatcher interface {
	// Publish dispatches one envelope onto the given ordering-group
	// lane and returns a transport message handle.
	Publish(ctx context.Context, groupID string, env *Envelope) (string, error)
}

// Queue is the durable message transport for one worker's chunks.
// Implementations provide at-least-once delivery and strict FIFO for
// messages sharing an ordering-group id.
type Queue interface {
	Dispatcher

	// Receive blocks until the next chunk is available or ctx is done.
	Receive(ctx context.Context) (Delivery, error)
}

// DelayScheduler dispatches an envelope onto its queue at a future
// time. It stands in for an external delayed-dispatch service.
type DelayScheduler interface {
	// Schedule arranges for env to be published to groupID at time at,
	// returning a scheduling handle.
	Schedule(ctx context.Context, at time.Time, groupID string, env *Envelope) (string, error)
}

// LedgerStore persists batch ledgers. Counter updates are atomic so
// that chunks of one ledger completing on different consumer instances
// never lose increments; status transitions are guarded to stay
// monotonic. Mutating methods return the post-mutation snapshot.
type LedgerStore interface {
	CreateLedger(ctx context.Context, ledger *Ledger) error
	GetLedger(ctx context.Context, correlationID string) (*Ledger, error)

	// MarkProcessing transitions a queued ledger to processing and
	// stamps the start time. A ledger already past queued is returned
	// unchanged.
	MarkProcessing(ctx context.Context, correlationID string, startedAt time.Time) (*Ledger, error)

	// IncrementProcessed atomically bumps the processed chunk count,
	// never past the total.
	IncrementProcessed(ctx context.Context, correlationID string) (*Ledger, error)

	// MarkFinished transitions a processing ledger to finished and
	// stamps the finish time.
	MarkFinished(ctx context.Context, correlationID string, finishedAt time.Time) (*Ledger, error)

	// IncrementErrorCount atomically bumps the error count.
	IncrementErrorCount(ctx context.Context, correlationID string) (*Ledger, error)

	// MarkErrored transitions a non-terminal ledger to errored with a
	// human-readable description and stamps the error time.
	MarkErrored(ctx context.Context, correlationID string, erroredAt time.Time, description string) (*Ledger, error)
}

// ItemStore persists per-item completion records while a batch is
// incomplete.
type ItemStore interface {
	ListChunkItems(ctx context.Context, correlationID string, chunkID int) ([]ItemRecord, error)
	UpsertItem(ctx context.Context, record *ItemRecord) error

	// DeleteLedgerItems purges every record for a ledger once it has
	// finished; the audit trail is only needed while the batch is
	// incomplete.
	DeleteLedgerItems(ctx context.Context, correlationID string) error
}

// Transactor opens the per-item transaction boundary the processor
// commits each handler invocation in.
type Transactor interface {
	InTx(ctx context.Context, fn store.TxFn) error
}

// ProgressEmitter pushes ledger snapshots to the live progress feed.
// *events.Emitter satisfies it.
type ProgressEmitter interface {
	Emit(ctx context.Context, event *events.ProgressEvent) error
}
