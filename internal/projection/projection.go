// Package projection builds read models by folding over event streams.
// Projections are pure consumers: they never write to the store, and
// rebuilding one from scratch always converges to the same state because
// event order within a stream is fixed and applies are idempotent.
package projection

import (
	"git.home.luguber.info/inful/chronicle/internal/eventstore"
	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
)

var (
	// ErrApplyFailed indicates a projection could not apply an event.
	ErrApplyFailed = errors.EventStoreError("projection failed to apply event").Build()

	// ErrRebuildFailed indicates a rebuild could not complete at all.
	ErrRebuildFailed = errors.EventStoreError("failed to rebuild projection").Build()
)

// Projection is a fold over ordered events. Implementations must treat a
// repeated event cid as a no-op, since distributed transports deliver at
// least once.
type Projection interface {
	// Name identifies the projection in logs and stats.
	Name() string
	// Apply folds one event and its payload into the read model. Events
	// arrive in sequence order per aggregate.
	Apply(event eventstore.Event, payload []byte) error
	// Reset clears the read model before a full rebuild.
	Reset()
}
