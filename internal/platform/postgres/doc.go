// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store and internal/task packages.
// It handles query execution, guarded status transitions, and data mapping
// between task records and database rows.
package postgres
