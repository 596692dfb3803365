package identity

import (
	"github.com/google/uuid"

	"git.home.luguber.info/inful/chronicle/internal/cid"
)

// Factory functions covering the message creation matrix. Commands and
// queries are identified by fresh UUIDs; events are identified by their
// content id. Root* constructors start a new causal chain, the *From*
// constructors extend an existing one.

// RootCommand starts a new causal chain with a command.
func RootCommand() MessageIdentity {
	return Root(FromUUID(uuid.New()))
}

// RootQuery starts a new causal chain with a query.
func RootQuery() MessageIdentity {
	return Root(FromUUID(uuid.New()))
}

// RootEvent starts a new causal chain with an externally originated event.
func RootEvent(eventCID cid.ContentID) MessageIdentity {
	return Root(FromCID(eventCID))
}

// CommandFromCommand derives a follow-up command from a parent command.
func CommandFromCommand(parent MessageIdentity) MessageIdentity {
	return CausedBy(FromUUID(uuid.New()), parent)
}

// CommandFromQuery derives a command issued in response to a query.
func CommandFromQuery(parent MessageIdentity) MessageIdentity {
	return CausedBy(FromUUID(uuid.New()), parent)
}

// CommandFromEvent derives a command triggered by an event, the usual shape
// of a process manager reacting to the log.
func CommandFromEvent(parent MessageIdentity) MessageIdentity {
	return CausedBy(FromUUID(uuid.New()), parent)
}

// QueryFromCommand derives a query issued while handling a command.
func QueryFromCommand(parent MessageIdentity) MessageIdentity {
	return CausedBy(FromUUID(uuid.New()), parent)
}

// QueryFromQuery derives a sub-query from a parent query.
func QueryFromQuery(parent MessageIdentity) MessageIdentity {
	return CausedBy(FromUUID(uuid.New()), parent)
}

// QueryFromEvent derives a query triggered by an event.
func QueryFromEvent(parent MessageIdentity) MessageIdentity {
	return CausedBy(FromUUID(uuid.New()), parent)
}

// EventFromCommand derives an event emitted while handling a command, the
// usual shape of aggregate decision logic.
func EventFromCommand(eventCID cid.ContentID, parent MessageIdentity) MessageIdentity {
	return CausedBy(FromCID(eventCID), parent)
}

// EventFromQuery derives an event recording the outcome of a query.
func EventFromQuery(eventCID cid.ContentID, parent MessageIdentity) MessageIdentity {
	return CausedBy(FromCID(eventCID), parent)
}

// EventFromEvent derives an event emitted in reaction to another event.
func EventFromEvent(eventCID cid.ContentID, parent MessageIdentity) MessageIdentity {
	return CausedBy(FromCID(eventCID), parent)
}
