package task

import (
	"encoding/json"
	"time"
)

// LedgerStatus represents the lifecycle state of a published batch.
// Transitions are monotonic: queued -> processing -> finished|errored.
type LedgerStatus string

// Possible ledger status values.
const (
	LedgerStatusQueued     LedgerStatus = "queued"
	LedgerStatusProcessing LedgerStatus = "processing"
	LedgerStatusFinished   LedgerStatus = "finished"
	LedgerStatusErrored    LedgerStatus = "errored"
)

// ErrorThreshold is the number of chunk failures a ledger tolerates.
// Once error_count exceeds it the ledger is marked errored, a terminal
// state requiring operator intervention.
const ErrorThreshold = 3

// Ledger is the persisted progress record for one published batch.
// It is created by the publisher at enqueue time and from then on
// mutated only by consumer loops, one monotonic transition at a time.
type Ledger struct {
	// CorrelationID uniquely identifies the batch and serves as the
	// default ordering key for its own chunks.
	CorrelationID string `json:"correlation_id"`

	Worker string `json:"worker"`
	Kind   string `json:"kind"`

	// Fingerprint is an md5 over worker+kind+payload, stored for
	// traceability and audit. It does not gate re-publication.
	Fingerprint string `json:"fingerprint"`

	ChunkSize       int `json:"chunk_size"`
	TotalChunks     int `json:"total_chunks"`
	ProcessedChunks int `json:"processed_chunks"`
	ErrorCount      int `json:"error_count"`

	Status LedgerStatus `json:"status"`

	// Description is the caller-supplied human description of the batch.
	Description string `json:"description,omitempty"`

	// StatusDescription records what went wrong when the ledger errored.
	StatusDescription string `json:"status_description,omitempty"`

	// Metadata is free-form caller context stored alongside the batch.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CorporationID/StoreID attribute the batch to a tenant and store.
	// Nil for hidden batches.
	CorporationID *int64 `json:"corporation_id,omitempty"`
	StoreID       *int64 `json:"store_id,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ErroredAt  *time.Time `json:"errored_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ItemStatus represents the recorded outcome of one item attempt.
// Absence of a record means the item has not been attempted yet.
type ItemStatus string

// Possible item status values.
const (
	ItemStatusFinished ItemStatus = "finished"
	ItemStatusErrored  ItemStatus = "errored"
)

// ItemRecord is the persisted outcome of one work item. A finished
// record means the item's side effects were durably applied and must
// never be re-applied; an errored record marks the item for retry on
// redelivery. Records are purged in bulk once the parent ledger
// finishes.
type ItemRecord struct {
	CorrelationID string `json:"correlation_id"`

	// Seq is the item's sequence number within the whole batch.
	Seq int `json:"seq"`

	// ChunkID is the chunk the item was dispatched in.
	ChunkID int `json:"chunk_id"`

	Status ItemStatus `json:"status"`

	// ProcessTime is how long the handler ran for this attempt.
	ProcessTime time.Duration `json:"process_time"`

	// StatusDescription holds the failure cause for errored records.
	StatusDescription string `json:"status_description,omitempty"`
}
