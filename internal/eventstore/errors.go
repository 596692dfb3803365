package eventstore

// Sentinel errors for event store operations, classified for consistent
// retry handling across both backends.

import (
	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.EventStoreError("could not open event store database").Build()

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize event store schema").Build()

	// ErrEventAppendFailed indicates appending an event failed.
	ErrEventAppendFailed = errors.EventStoreError("failed to append event to store").Build()

	// ErrEventQueryFailed indicates querying events failed.
	ErrEventQueryFailed = errors.EventStoreError("failed to query events from store").Build()

	// ErrEventScanFailed indicates decoding stored event rows failed.
	ErrEventScanFailed = errors.EventStoreError("failed to scan event rows").Build()

	// ErrEventNotFound indicates no event exists for the given content id.
	ErrEventNotFound = errors.EventStoreError("event not found").Build()

	// ErrConcurrencyConflict indicates the stream advanced past the
	// expected version. The caller re-reads and retries.
	ErrConcurrencyConflict = errors.ConcurrencyError("expected version does not match current stream version").Build()

	// ErrEmptyAppend indicates an append call carried no events.
	ErrEmptyAppend = errors.ValidationError("append requires at least one event").Build()

	// ErrStoreClosed indicates use of the store after Close.
	ErrStoreClosed = errors.EventStoreError("event store is closed").Build()
)
