// Package identity implements the correlation/causation algebra attached to
// every message (command, query or event) flowing through chronicle.
//
// Each message carries a triple {message id, correlation id, causation id}.
// A root message, one with no causal parent, is self-correlated: all three
// ids are equal. A caused message inherits its parent's correlation id
// verbatim and records the parent's message id as its causation id. The
// correlation id therefore names the whole causal chain while the causation
// id names the immediate parent, and the full lineage of any message can be
// reconstructed by following causation ids back to the root.
package identity

import (
	"github.com/google/uuid"

	"git.home.luguber.info/inful/chronicle/internal/cid"
)

// Kind discriminates the two id encodings used in the system.
type Kind uint8

const (
	// KindUUID identifies commands and queries.
	KindUUID Kind = iota + 1
	// KindCID identifies events, which are content-addressed.
	KindCID
)

// ID is a tagged identifier: a UUID for commands and queries, a ContentID
// for events. The zero ID is invalid.
type ID struct {
	kind Kind
	uid  uuid.UUID
	cid  cid.ContentID
}

// FromUUID wraps a command/query identifier.
func FromUUID(id uuid.UUID) ID {
	return ID{kind: KindUUID, uid: id}
}

// FromCID wraps an event content identifier.
func FromCID(id cid.ContentID) ID {
	return ID{kind: KindCID, cid: id}
}

// Kind returns the id encoding.
func (id ID) Kind() Kind { return id.kind }

// UUID returns the wrapped UUID; the second result is false for CID-kinded ids.
func (id ID) UUID() (uuid.UUID, bool) {
	return id.uid, id.kind == KindUUID
}

// CID returns the wrapped ContentID; the second result is false for UUID-kinded ids.
func (id ID) CID() (cid.ContentID, bool) {
	return id.cid, id.kind == KindCID
}

// IsZero reports whether the id carries no value.
func (id ID) IsZero() bool { return id.kind == 0 }

// Equal reports whether two ids have the same kind and value.
func (id ID) Equal(other ID) bool {
	if id.kind != other.kind {
		return false
	}
	switch id.kind {
	case KindUUID:
		return id.uid == other.uid
	case KindCID:
		return id.cid.Equal(other.cid)
	default:
		return true
	}
}

// String returns the wire encoding: the UUID string or the canonical
// ContentID string, depending on kind.
func (id ID) String() string {
	switch id.kind {
	case KindUUID:
		return id.uid.String()
	case KindCID:
		return id.cid.String()
	default:
		return ""
	}
}

// ParseID decodes a wire-encoded id, trying the ContentID form first and
// falling back to UUID. Both encodings are unambiguous: ContentIDs carry the
// "c1-" prefix, UUIDs never do.
func ParseID(s string) (ID, error) {
	if c, err := cid.Parse(s); err == nil {
		return FromCID(c), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, ErrUnparsableID.WithContext("input", s)
	}
	return FromUUID(u), nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MessageIdentity is the correlation/causation triple. It is constructed
// once when the message is created and never recomputed; it travels with the
// message for its entire transit, including across process boundaries as
// wire headers.
type MessageIdentity struct {
	// MessageID uniquely identifies this message.
	MessageID ID `json:"message_id"`
	// CorrelationID groups all messages of one causal chain.
	CorrelationID ID `json:"correlation_id"`
	// CausationID identifies the immediate parent message.
	CausationID ID `json:"causation_id"`
}

// Root constructs a self-correlated identity for a message with no causal
// parent (a user-initiated command, an external trigger).
func Root(messageID ID) MessageIdentity {
	return MessageIdentity{
		MessageID:     messageID,
		CorrelationID: messageID,
		CausationID:   messageID,
	}
}

// CausedBy constructs the identity of a message caused by parent: the
// correlation id is inherited verbatim, the causation id is the parent's
// message id.
func CausedBy(messageID ID, parent MessageIdentity) MessageIdentity {
	return MessageIdentity{
		MessageID:     messageID,
		CorrelationID: parent.CorrelationID,
		CausationID:   parent.MessageID,
	}
}

// IsRoot reports whether all three ids are equal.
func (m MessageIdentity) IsRoot() bool {
	return m.MessageID.Equal(m.CorrelationID) && m.MessageID.Equal(m.CausationID)
}
