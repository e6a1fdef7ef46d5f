package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Handler processes one item payload inside the transaction the
// processor opened for it. Implementations must be safe to invoke for
// different items concurrently; the subsystem invokes a handler at most
// once per item per attempt.
type Handler func(ctx context.Context, tx *sql.Tx, scope Scope, payload json.RawMessage) error

// HandlerFor adapts a strongly-typed handler function to the Handler
// contract, decoding the kind-tagged payload into T before invoking it.
func HandlerFor[T any](fn func(ctx context.Context, tx *sql.Tx, scope Scope, body T) error) Handler {
	return func(ctx context.Context, tx *sql.Tx, scope Scope, payload json.RawMessage) error {
		var body T
		if err := json.Unmarshal(payload, &body); err != nil {
			return fmt.Errorf("failed to decode %T payload: %w", body, err)
		}
		return fn(ctx, tx, scope, body)
	}
}

// Registry maps kind names to their handlers. It is populated once at
// startup, validated against the catalog, and read-only afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a kind name. Registering the same kind
// twice is a wiring mistake and returns ErrHandlerExists.
func (r *Registry) Register(kind string, handler Handler) error {
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Resolve returns the handler for a kind, or an error wrapping
// ErrNoHandler if none was registered.
func (r *Registry) Resolve(kind string) (Handler, error) {
	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, kind)
	}
	return handler, nil
}

// ValidateAgainst checks that every kind the catalog declares for the
// given worker has a registered handler, so a deployment gap surfaces
// at startup instead of as per-message failures in production.
func (r *Registry) ValidateAgainst(catalog *Catalog, worker string) error {
	var missing []string
	for _, def := range catalog.WorkerKinds(worker) {
		if _, ok := r.handlers[def.Kind]; !ok {
			missing = append(missing, def.Kind)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: worker %s is missing handlers for %s",
			ErrNoHandler, worker, strings.Join(missing, ", "))
	}
	return nil
}
