// Package eventstore provides the event sourcing core: content-addressed,
// hash-linked event streams with optimistic concurrency control. The Store
// interface is the unified contract served by the local SQLite backend here
// and the JetStream backend in internal/natsstore.
package eventstore

import (
	"context"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/chronicle/internal/cid"
)

// Store persists and retrieves events. Implementations serialize appends
// per aggregate; appends to different aggregates proceed in parallel.
type Store interface {
	// Append adds a single event to the aggregate's stream, unconditionally.
	Append(ctx context.Context, aggregateID uuid.UUID, eventType string, payload []byte) (Event, error)

	// AppendEvents atomically appends a batch to the aggregate's stream.
	// When expectedVersion is non-nil the append succeeds only if the
	// stream's current version equals it (0 means "stream must be empty");
	// otherwise ErrConcurrencyConflict is returned and nothing is written.
	AppendEvents(ctx context.Context, aggregateID uuid.UUID, events []ProposedEvent, expectedVersion *uint64) ([]Event, error)

	// Events returns the aggregate's full stream in sequence order. An
	// unknown aggregate yields an empty slice, not an error.
	Events(ctx context.Context, aggregateID uuid.UUID) ([]Event, error)

	// EventsFrom returns the stream starting at the given sequence
	// (inclusive).
	EventsFrom(ctx context.Context, aggregateID uuid.UUID, position uint64) ([]Event, error)

	// EventByCID looks up a single event by its content id.
	EventByCID(ctx context.Context, id cid.ContentID) (Event, error)

	// TraverseFrom walks the parent links backward starting at the given
	// event cid, returning at most limit events, newest first. A limit of
	// 0 means no limit.
	TraverseFrom(ctx context.Context, id cid.ContentID, limit int) ([]Event, error)

	// Payload returns the payload bytes for a payload cid.
	Payload(ctx context.Context, id cid.ContentID) ([]byte, error)

	// Subscribe delivers events committed after the call. A nil
	// aggregateID subscribes to all streams. The subscription ends when
	// ctx is cancelled or Close is called on it.
	Subscribe(ctx context.Context, aggregateID *uuid.UUID) (*Subscription, error)

	// Version returns the aggregate's current version: the sequence of its
	// latest event, or 0 for an unknown aggregate.
	Version(ctx context.Context, aggregateID uuid.UUID) (uint64, error)

	// Aggregates lists the ids of all streams with at least one event.
	Aggregates(ctx context.Context) ([]uuid.UUID, error)

	// Stats returns store-level counters.
	Stats(ctx context.Context) (Stats, error)

	// Close releases resources. The store is unusable afterwards.
	Close() error
}

// Stats summarizes a store's contents and activity.
type Stats struct {
	// TotalEvents is the number of committed events across all streams.
	TotalEvents uint64 `json:"total_events"`
	// Aggregates is the number of distinct streams.
	Aggregates uint64 `json:"aggregates"`
	// Appends counts successful append operations since open.
	Appends uint64 `json:"appends"`
	// Conflicts counts appends rejected on version mismatch since open.
	Conflicts uint64 `json:"conflicts"`
	// CacheHits and CacheMisses count read cache activity; zero for
	// backends without a cache.
	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`
}
