package task

import (
	"encoding/json"
	"fmt"
)

// Scope carries the request-scoped identifiers a handler needs to
// reproduce the caller's tenant/store context without re-resolving it.
// It travels inside every envelope; handlers receive it explicitly.
type Scope struct {
	CorporationID *int64 `json:"corporation_id,omitempty"`
	StoreID       *int64 `json:"store_id,omitempty"`
}

// Item is one unit of work inside a chunk. Seq is the item's stable
// sequence number within the whole batch (1-based, assigned at publish
// time) and keys the item's completion record across redeliveries.
type Item struct {
	Seq     int             `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope is the wire record for one chunk: an ordered sub-batch of
// items dispatched as a single queue message.
type Envelope struct {
	Worker         string `json:"worker"`
	Kind           string `json:"kind"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	ChunkID        int    `json:"chunk_id"`
	Items          []Item `json:"items"`
	Scope          Scope  `json:"scope"`
	SystemInternal bool   `json:"system_internal,omitempty"`
}

// Encode serializes the envelope for transport.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a wire message back into an Envelope,
// rejecting structurally invalid messages before they reach a consumer.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Worker == "" || env.Kind == "" {
		return nil, fmt.Errorf("envelope missing worker or kind")
	}
	if env.ChunkID < 1 {
		return nil, fmt.Errorf("envelope has invalid chunk id %d", env.ChunkID)
	}
	if len(env.Items) == 0 {
		return nil, fmt.Errorf("envelope has no items")
	}
	return &env, nil
}
