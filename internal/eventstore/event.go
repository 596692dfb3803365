package eventstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/chronicle/internal/cid"
	"git.home.luguber.info/inful/chronicle/internal/identity"
)

// Event is one committed fact in an aggregate's stream. Events are immutable
// once appended; the EventCID names exactly this record and the ParentCIDs
// link it to its predecessor, so a stream forms a hash-linked chain that can
// be verified end to end.
type Event struct {
	// AggregateID identifies the stream this event belongs to.
	AggregateID uuid.UUID `json:"aggregate_id"`
	// Sequence is the position within the stream, starting at 1.
	Sequence uint64 `json:"sequence"`
	// EventType names the kind of fact, e.g. "NodeAdded".
	EventType string `json:"event_type"`
	// EventCID is the content id of this record.
	EventCID cid.ContentID `json:"event_cid"`
	// ParentCIDs holds the event cid of the predecessor; empty for the
	// first event of a stream.
	ParentCIDs []cid.ContentID `json:"parent_cids,omitempty"`
	// PayloadCID addresses the payload bytes in the payload store.
	PayloadCID cid.ContentID `json:"payload_cid"`
	// Identity is the correlation/causation triple.
	Identity identity.MessageIdentity `json:"identity"`
	// Timestamp records when the event was appended. It is bookkeeping
	// only and never part of the content id.
	Timestamp time.Time `json:"timestamp"`
}

// ProposedEvent is an event that has not been appended yet. Sequence,
// parent links, cid and identity are assigned by the store at append time.
type ProposedEvent struct {
	// EventType names the kind of fact.
	EventType string
	// Payload is the serialized event data.
	Payload []byte
	// CausedBy optionally names the message that caused this event. When
	// nil the event continues its stream's causal chain, or starts a new
	// one if the stream is empty.
	CausedBy *identity.MessageIdentity
}

// ComputeEventCID derives the content id of an event from its identifying
// fields. The input covers aggregate id, type, sequence, payload cid and
// parent cids and nothing else, so independent replays of the same facts
// produce identical ids.
func ComputeEventCID(aggregateID uuid.UUID, eventType string, sequence uint64, payloadCID cid.ContentID, parentCIDs []cid.ContentID) cid.ContentID {
	var b strings.Builder
	b.WriteString("chronicle/event/v1\n")
	b.WriteString(aggregateID.String())
	b.WriteByte('\n')
	b.WriteString(eventType)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatUint(sequence, 10))
	b.WriteByte('\n')
	b.WriteString(payloadCID.String())
	b.WriteByte('\n')
	for i, p := range parentCIDs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	return cid.FromContent([]byte(b.String()))
}

// Verify recomputes the event cid from the record's fields and reports
// whether it matches the stored one.
func (e Event) Verify() bool {
	return e.EventCID.Equal(ComputeEventCID(e.AggregateID, e.EventType, e.Sequence, e.PayloadCID, e.ParentCIDs))
}
