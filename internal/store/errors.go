package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is the generic version of the entity-specific not found errors.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g. a second ledger with the same correlation id).
	ErrDuplicate = errors.New("entity already exists")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrInvalidEntity is returned when an entity fails database-level
	// validation such as foreign key, check, or not-null constraints.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific errors

	// ErrLedgerNotFound indicates that no task ledger exists for the
	// requested correlation id.
	ErrLedgerNotFound = fmt.Errorf("%w: task ledger", ErrNotFound)

	// ErrLedgerExists indicates that a ledger with the given correlation id
	// has already been created.
	ErrLedgerExists = fmt.Errorf("%w: task ledger", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate entity" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
