package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task subsystem.
var (
	// ErrUnknownKind is returned by catalog lookups (and publishes that
	// depend on them) when the worker/kind pair is not declared.
	// Nothing is persisted or dispatched when a publish fails with it.
	ErrUnknownKind = errors.New("unknown worker or kind")

	// ErrNoHandler is returned when a consumer receives a chunk for a
	// kind no handler was registered for. It is fatal per message: the
	// deployment is missing a handler and an operator must intervene.
	ErrNoHandler = errors.New("no handler registered for kind")

	// ErrHandlerExists is returned when registering a second handler
	// for the same kind.
	ErrHandlerExists = errors.New("handler already registered for kind")
)

// ItemError reports the first item of a chunk that failed and aborted
// the remainder. Already-recorded item outcomes are preserved, so a
// redelivery resumes from this item.
type ItemError struct {
	// Seq is the failed item's sequence number within the whole batch.
	Seq int

	// Err is the underlying handler failure.
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d failed: %v", e.Seq, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
