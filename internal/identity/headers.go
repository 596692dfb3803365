package identity

import (
	"github.com/nats-io/nats.go"
)

// Wire header names for identity propagation across process boundaries.
const (
	HeaderMessageID     = "X-Message-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderCausationID   = "X-Causation-ID"
)

// ToHeader writes the identity triple into h.
func (m MessageIdentity) ToHeader(h nats.Header) {
	h.Set(HeaderMessageID, m.MessageID.String())
	h.Set(HeaderCorrelationID, m.CorrelationID.String())
	h.Set(HeaderCausationID, m.CausationID.String())
}

// FromHeader reconstructs an identity triple from wire headers. All three
// headers must be present and parsable.
func FromHeader(h nats.Header) (MessageIdentity, error) {
	var m MessageIdentity
	var err error
	if m.MessageID, err = ParseID(h.Get(HeaderMessageID)); err != nil {
		return MessageIdentity{}, ErrInvalidIdentity.WithContext("header", HeaderMessageID)
	}
	if m.CorrelationID, err = ParseID(h.Get(HeaderCorrelationID)); err != nil {
		return MessageIdentity{}, ErrInvalidIdentity.WithContext("header", HeaderCorrelationID)
	}
	if m.CausationID, err = ParseID(h.Get(HeaderCausationID)); err != nil {
		return MessageIdentity{}, ErrInvalidIdentity.WithContext("header", HeaderCausationID)
	}
	return m, nil
}
