package eventstore

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/chronicle/internal/cid"
)

func TestGraphEventConstructors(t *testing.T) {
	added, err := NewNodeAdded("n1", "note", "First note", map[string]string{"color": "blue"})
	if err != nil {
		t.Fatalf("NewNodeAdded failed: %v", err)
	}
	if added.EventType != TypeNodeAdded {
		t.Errorf("expected type %s, got %s", TypeNodeAdded, added.EventType)
	}
	var payload NodeAddedPayload
	if err := json.Unmarshal(added.Payload, &payload); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if payload.NodeID != "n1" || payload.NodeType != "note" || payload.Props["color"] != "blue" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	edge, err := NewEdgeConnected("n1", "n2", "references")
	if err != nil {
		t.Fatalf("NewEdgeConnected failed: %v", err)
	}
	if edge.EventType != TypeEdgeConnected {
		t.Errorf("expected type %s, got %s", TypeEdgeConnected, edge.EventType)
	}

	content, err := NewContentAdded("n1", "text/markdown", "# heading")
	if err != nil {
		t.Fatalf("NewContentAdded failed: %v", err)
	}
	var cp ContentAddedPayload
	if err := json.Unmarshal(content.Payload, &cp); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if cp.Content != "# heading" {
		t.Errorf("unexpected content: %q", cp.Content)
	}
}

func TestEventCIDDeterminism(t *testing.T) {
	aggregateID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	payloadCID := cid.FromContent([]byte(`{"node_id":"n1"}`))
	parents := []cid.ContentID{cid.FromContent([]byte("parent"))}

	a := ComputeEventCID(aggregateID, TypeNodeAdded, 2, payloadCID, parents)
	b := ComputeEventCID(aggregateID, TypeNodeAdded, 2, payloadCID, parents)
	if !a.Equal(b) {
		t.Fatal("identical inputs must produce identical event cids")
	}
}

func TestEventCIDSensitivity(t *testing.T) {
	aggregateID := uuid.New()
	payloadCID := cid.FromContent([]byte("payload"))

	base := ComputeEventCID(aggregateID, TypeNodeAdded, 1, payloadCID, nil)

	if ComputeEventCID(uuid.New(), TypeNodeAdded, 1, payloadCID, nil).Equal(base) {
		t.Error("different aggregate must change the cid")
	}
	if ComputeEventCID(aggregateID, TypeNodeRemoved, 1, payloadCID, nil).Equal(base) {
		t.Error("different type must change the cid")
	}
	if ComputeEventCID(aggregateID, TypeNodeAdded, 2, payloadCID, nil).Equal(base) {
		t.Error("different sequence must change the cid")
	}
	if ComputeEventCID(aggregateID, TypeNodeAdded, 1, cid.FromContent([]byte("other")), nil).Equal(base) {
		t.Error("different payload must change the cid")
	}
	withParent := ComputeEventCID(aggregateID, TypeNodeAdded, 1, payloadCID,
		[]cid.ContentID{cid.FromContent([]byte("p"))})
	if withParent.Equal(base) {
		t.Error("different parents must change the cid")
	}
}
