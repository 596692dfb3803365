package eventstore

import (
	"encoding/json"

	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
)

// Event type names for the graph domain. These are the payload vocabulary
// consumed by the graph projection; the store itself treats types as opaque.
const (
	TypeNodeAdded     = "NodeAdded"
	TypeNodeUpdated   = "NodeUpdated"
	TypeNodeMoved     = "NodeMoved"
	TypeNodeRemoved   = "NodeRemoved"
	TypeEdgeConnected = "EdgeConnected"
	TypeEdgeRemoved   = "EdgeRemoved"
	TypeContentAdded  = "ContentAdded"
)

// NodeAddedPayload carries the data for a NodeAdded event.
type NodeAddedPayload struct {
	NodeID   string            `json:"node_id"`
	NodeType string            `json:"node_type"`
	Label    string            `json:"label,omitempty"`
	Props    map[string]string `json:"props,omitempty"`
}

// NewNodeAdded builds a NodeAdded proposed event.
func NewNodeAdded(nodeID, nodeType, label string, props map[string]string) (ProposedEvent, error) {
	return marshalProposed(TypeNodeAdded, NodeAddedPayload{
		NodeID:   nodeID,
		NodeType: nodeType,
		Label:    label,
		Props:    props,
	})
}

// NodeUpdatedPayload carries the data for a NodeUpdated event. Props are
// merged into the node's existing properties.
type NodeUpdatedPayload struct {
	NodeID string            `json:"node_id"`
	Label  string            `json:"label,omitempty"`
	Props  map[string]string `json:"props,omitempty"`
}

// NewNodeUpdated builds a NodeUpdated proposed event.
func NewNodeUpdated(nodeID, label string, props map[string]string) (ProposedEvent, error) {
	return marshalProposed(TypeNodeUpdated, NodeUpdatedPayload{
		NodeID: nodeID,
		Label:  label,
		Props:  props,
	})
}

// NodeMovedPayload carries the data for a NodeMoved event.
type NodeMovedPayload struct {
	NodeID string  `json:"node_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

// NewNodeMoved builds a NodeMoved proposed event.
func NewNodeMoved(nodeID string, x, y, z float64) (ProposedEvent, error) {
	return marshalProposed(TypeNodeMoved, NodeMovedPayload{NodeID: nodeID, X: x, Y: y, Z: z})
}

// NodeRemovedPayload carries the data for a NodeRemoved event.
type NodeRemovedPayload struct {
	NodeID string `json:"node_id"`
}

// NewNodeRemoved builds a NodeRemoved proposed event.
func NewNodeRemoved(nodeID string) (ProposedEvent, error) {
	return marshalProposed(TypeNodeRemoved, NodeRemovedPayload{NodeID: nodeID})
}

// EdgeConnectedPayload carries the data for an EdgeConnected event.
type EdgeConnectedPayload struct {
	FromID   string `json:"from_id"`
	ToID     string `json:"to_id"`
	Relation string `json:"relation,omitempty"`
}

// NewEdgeConnected builds an EdgeConnected proposed event.
func NewEdgeConnected(fromID, toID, relation string) (ProposedEvent, error) {
	return marshalProposed(TypeEdgeConnected, EdgeConnectedPayload{
		FromID:   fromID,
		ToID:     toID,
		Relation: relation,
	})
}

// EdgeRemovedPayload carries the data for an EdgeRemoved event.
type EdgeRemovedPayload struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

// NewEdgeRemoved builds an EdgeRemoved proposed event.
func NewEdgeRemoved(fromID, toID string) (ProposedEvent, error) {
	return marshalProposed(TypeEdgeRemoved, EdgeRemovedPayload{FromID: fromID, ToID: toID})
}

// ContentAddedPayload carries the data for a ContentAdded event attaching
// content to a node.
type ContentAddedPayload struct {
	NodeID      string `json:"node_id"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
}

// NewContentAdded builds a ContentAdded proposed event.
func NewContentAdded(nodeID, contentType, content string) (ProposedEvent, error) {
	return marshalProposed(TypeContentAdded, ContentAddedPayload{
		NodeID:      nodeID,
		ContentType: contentType,
		Content:     content,
	})
}

func marshalProposed(eventType string, payload any) (ProposedEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return ProposedEvent{}, errors.EventStoreError("failed to marshal event payload").
			WithCause(err).
			WithContext("event_type", eventType).
			Build()
	}
	return ProposedEvent{EventType: eventType, Payload: data}, nil
}
