// Package events provides types and interfaces for the task progress feed.
//
// This package defines event types and sink interfaces that allow for loose
// coupling between the task subsystem and whatever transports the live
// progress updates (redis pub/sub in production, in-memory sinks in tests).
// Publishers and consumers emit events without knowing which sinks will
// receive them.
//
// The primary components are:
// - ProgressEvent: A snapshot of a ledger emitted on every status-affecting mutation
// - Sink: Interface for components that receive events
// - Emitter: Fan-out from one emit call to all registered sinks
package events
