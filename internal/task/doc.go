// Package task manages bulk background work: splitting batches into
// ordered chunks, dispatching them onto a durable queue, and consuming
// them with idempotent, resumable per-item processing backed by a
// persisted progress ledger. It assumes at-least-once delivery from the
// transport and compensates with per-item completion records, so domain
// side effects are applied exactly once even across redeliveries.
package task
