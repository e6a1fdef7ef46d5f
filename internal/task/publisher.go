package task

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// PublishRequest describes one batch of work to dispatch.
type PublishRequest struct {
	// Worker and Kind select the catalog entry governing chunking,
	// delay, ordering and throttling.
	Worker string
	Kind   string

	// Payloads are the work items in submission order. Each is
	// serialized as the payload of one item. An empty batch is a
	// documented no-op.
	Payloads []any

	// Scope carries the caller's tenant/store identifiers into every
	// chunk so handlers can reproduce them without re-resolving.
	Scope Scope

	// CorrelationID overrides the generated batch id. Callers extend
	// their own id with a suffix to split unrelated batches onto
	// distinct ordering lanes.
	CorrelationID string

	// GroupID forces a specific ordering-group lane, overriding the
	// catalog rule.
	GroupID string

	// Delay overrides the kind's fixed dispatch delay when positive.
	Delay time.Duration

	// SystemInternal marks a batch published by the system itself:
	// no ledger row is created and no progress events are emitted.
	SystemInternal bool

	// Hidden keeps tenant/store attribution off the ledger row while
	// still tracking progress.
	Hidden bool

	// Description is an optional human-readable label for dashboards.
	Description string

	// Metadata is optional free-form context stored on the ledger.
	Metadata json.RawMessage
}

// DispatchHandle identifies one dispatched chunk: a queue message
// handle for immediate dispatch or a scheduling handle for delayed
// dispatch.
type DispatchHandle struct {
	ChunkID   int
	HandleID  string
	Scheduled bool
}

// Publisher splits batches into ordered chunks, persists the batch
// ledger, and dispatches each chunk immediately or via the delay
// scheduler.
type Publisher struct {
	catalog   *Catalog
	ledgers   LedgerStore
	queue     Dispatcher
	scheduler DelayScheduler
	progress  ProgressEmitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewPublisher creates a Publisher. The scheduler may be nil when no
// kind carries a dispatch delay.
func NewPublisher(
	catalog *Catalog,
	ledgers LedgerStore,
	queue Dispatcher,
	scheduler DelayScheduler,
	progress ProgressEmitter,
	logger *slog.Logger,
) *Publisher {
	return &Publisher{
		catalog:   catalog,
		ledgers:   ledgers,
		queue:     queue,
		scheduler: scheduler,
		progress:  progress,
		logger:    logger.With("component", "task_publisher"),
		now:       time.Now,
	}
}

// Publish validates the request against the catalog, persists a queued
// ledger (unless the batch is system-internal), splits the items into
// chunks of at most the kind's chunk size, and dispatches the chunks in
// chunk-id order. It returns one handle per chunk.
//
// An empty batch returns an empty handle list without side effects.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) ([]DispatchHandle, error) {
	if len(req.Payloads) == 0 {
		return []DispatchHandle{}, nil
	}

	def, err := p.catalog.Lookup(req.Worker, req.Kind)
	if err != nil {
		return nil, err
	}

	items, err := buildItems(req.Payloads)
	if err != nil {
		return nil, err
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	chunks := chunkItems(items, def.ChunkSize)

	delay := req.Delay
	if delay <= 0 {
		delay = def.FixedDelay
	}

	log := p.logger.With(
		"worker", req.Worker,
		"kind", req.Kind,
		"correlation_id", correlationID,
		"item_count", len(items),
		"chunk_count", len(chunks),
	)

	if !req.SystemInternal {
		createdAt := p.now().UTC()
		ledger := &Ledger{
			CorrelationID: correlationID,
			Worker:        req.Worker,
			Kind:          req.Kind,
			Fingerprint:   fingerprint(req.Worker, req.Kind, items),
			ChunkSize:     def.ChunkSize,
			TotalChunks:   len(chunks),
			Status:        LedgerStatusQueued,
			Description:   req.Description,
			Metadata:      req.Metadata,
			CreatedAt:     createdAt,
			UpdatedAt:     createdAt,
		}
		if !req.Hidden {
			ledger.CorporationID = req.Scope.CorporationID
			ledger.StoreID = req.Scope.StoreID
		}

		if err := p.ledgers.CreateLedger(ctx, ledger); err != nil {
			return nil, fmt.Errorf("failed to create task ledger: %w", err)
		}
		emitProgress(ctx, p.progress, ledger)
	}

	groupID := p.orderingGroup(req, def, correlationID)

	handles := make([]DispatchHandle, 0, len(chunks))
	for i, chunk := range chunks {
		env := &Envelope{
			Worker:         req.Worker,
			Kind:           req.Kind,
			CorrelationID:  correlationID,
			ChunkID:        i + 1,
			Items:          chunk,
			Scope:          req.Scope,
			SystemInternal: req.SystemInternal,
		}

		if delay > 0 {
			handleID, err := p.scheduler.Schedule(ctx, p.now().Add(delay), groupID, env)
			if err != nil {
				return handles, fmt.Errorf("failed to schedule chunk %d: %w", env.ChunkID, err)
			}
			handles = append(handles, DispatchHandle{ChunkID: env.ChunkID, HandleID: handleID, Scheduled: true})
		} else {
			handleID, err := p.queue.Publish(ctx, groupID, env)
			if err != nil {
				return handles, fmt.Errorf("failed to dispatch chunk %d: %w", env.ChunkID, err)
			}
			handles = append(handles, DispatchHandle{ChunkID: env.ChunkID, HandleID: handleID})
		}
	}

	log.Info("published task batch", "group_id", groupID, "delayed", delay > 0)
	return handles, nil
}

// orderingGroup computes the lane all of this batch's chunks share.
// First match wins: explicit override; then "{storeID}-{tag}" when the
// kind declares a group tag and the caller has a store scope; then the
// batch's own correlation id.
func (p *Publisher) orderingGroup(req PublishRequest, def KindDef, correlationID string) string {
	if req.GroupID != "" {
		return req.GroupID
	}
	if def.OrderingGroupTag != "" && req.Scope.StoreID != nil {
		return fmt.Sprintf("%d-%s", *req.Scope.StoreID, def.OrderingGroupTag)
	}
	return correlationID
}

// buildItems serializes the payloads and assigns 1-based sequence
// numbers in submission order.
func buildItems(payloads []any) ([]Item, error) {
	items := make([]Item, 0, len(payloads))
	for i, payload := range payloads {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize item %d: %w", i+1, err)
		}
		items = append(items, Item{Seq: i + 1, Payload: data})
	}
	return items, nil
}

// chunkItems splits items into chunks of at most size, preserving order.
func chunkItems(items []Item, size int) [][]Item {
	chunks := make([][]Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// fingerprint hashes worker+kind+payloads for traceability. Duplicate
// publishes are allowed and produce a new ledger with the same value.
func fingerprint(worker, kind string, items []Item) string {
	h := md5.New()
	fmt.Fprintf(h, "%s-%s-", worker, kind)
	for _, item := range items {
		h.Write(item.Payload)
	}
	return hex.EncodeToString(h.Sum(nil))
}
