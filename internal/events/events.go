package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTypeTaskProgress is emitted whenever a task ledger is created or
// changes lifecycle state (PROCESSING, FINISHED, ERRORED) or counters.
const EventTypeTaskProgress = "task_progress"

// ProgressEvent carries a ledger snapshot to the live-update feed.
// The payload is kept as raw JSON so this package needs no knowledge
// of the task package's types.
type ProgressEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates the event category (currently always task_progress)
	Type string `json:"type"`

	// StoreID scopes the event to one store's feed when set
	StoreID *int64 `json:"store_id,omitempty"`

	// Payload contains the ledger snapshot serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewProgressEvent creates a ProgressEvent for the given payload,
// serializing it to JSON. storeID may be nil for events with no store scope.
func NewProgressEvent(storeID *int64, payload interface{}) (*ProgressEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &ProgressEvent{
		ID:        uuid.New(),
		Type:      EventTypeTaskProgress,
		StoreID:   storeID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *ProgressEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Sink receives progress events. Implementations must be safe for
// concurrent use; the emitter may deliver from multiple goroutines.
type Sink interface {
	// Publish delivers the given event. Returns an error if the event
	// could not be delivered.
	Publish(ctx context.Context, event *ProgressEvent) error
}
