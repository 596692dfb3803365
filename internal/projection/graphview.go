package projection

import (
	"encoding/json"
	"sort"
	"sync"

	"git.home.luguber.info/inful/chronicle/internal/cid"
	"git.home.luguber.info/inful/chronicle/internal/eventstore"
)

// Node is one vertex of the graph read model.
type Node struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Label   string            `json:"label,omitempty"`
	Props   map[string]string `json:"props,omitempty"`
	X       float64           `json:"x"`
	Y       float64           `json:"y"`
	Z       float64           `json:"z"`
	Content []string          `json:"content,omitempty"`
}

// Summary is a point-in-time overview of the graph.
type Summary struct {
	NodeCount     int            `json:"node_count"`
	EdgeCount     int            `json:"edge_count"`
	EventsApplied uint64         `json:"events_applied"`
	NodesByType   map[string]int `json:"nodes_by_type"`
}

// GraphView maintains an in-memory graph of nodes and edges, reconstructed
// from graph-domain events. Safe for concurrent use.
type GraphView struct {
	mu      sync.RWMutex
	nodes   map[string]*Node
	out     map[string]map[string]string // from -> to -> relation
	in      map[string]map[string]struct{}
	applied map[cid.ContentID]struct{}
	count   uint64
}

// NewGraphView creates an empty graph view.
func NewGraphView() *GraphView {
	g := &GraphView{}
	g.resetLocked()
	return g
}

// Name implements Projection.
func (g *GraphView) Name() string { return "graph_view" }

// Reset implements Projection.
func (g *GraphView) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

func (g *GraphView) resetLocked() {
	g.nodes = make(map[string]*Node)
	g.out = make(map[string]map[string]string)
	g.in = make(map[string]map[string]struct{})
	g.applied = make(map[cid.ContentID]struct{})
	g.count = 0
}

// Apply implements Projection. Duplicate events (same cid) and unknown
// event types are ignored.
func (g *GraphView) Apply(event eventstore.Event, payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, dup := g.applied[event.EventCID]; dup {
		return nil
	}

	var err error
	switch event.EventType {
	case eventstore.TypeNodeAdded:
		err = g.applyNodeAdded(payload)
	case eventstore.TypeNodeUpdated:
		err = g.applyNodeUpdated(payload)
	case eventstore.TypeNodeMoved:
		err = g.applyNodeMoved(payload)
	case eventstore.TypeNodeRemoved:
		err = g.applyNodeRemoved(payload)
	case eventstore.TypeEdgeConnected:
		err = g.applyEdgeConnected(payload)
	case eventstore.TypeEdgeRemoved:
		err = g.applyEdgeRemoved(payload)
	case eventstore.TypeContentAdded:
		err = g.applyContentAdded(payload)
	default:
		// Unknown types are skipped so old views survive new vocabulary.
		g.applied[event.EventCID] = struct{}{}
		return nil
	}
	if err != nil {
		return ErrApplyFailed.
			WithContext("event_type", event.EventType).
			WithContext("event_cid", event.EventCID.String())
	}

	g.applied[event.EventCID] = struct{}{}
	g.count++
	return nil
}

func (g *GraphView) applyNodeAdded(payload []byte) error {
	var p eventstore.NodeAddedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	node := &Node{ID: p.NodeID, Type: p.NodeType, Label: p.Label}
	if len(p.Props) > 0 {
		node.Props = make(map[string]string, len(p.Props))
		for k, v := range p.Props {
			node.Props[k] = v
		}
	}
	g.nodes[p.NodeID] = node
	return nil
}

func (g *GraphView) applyNodeUpdated(payload []byte) error {
	var p eventstore.NodeUpdatedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	node, ok := g.nodes[p.NodeID]
	if !ok {
		// Update for a node this view never saw; nothing to fold.
		return nil
	}
	if p.Label != "" {
		node.Label = p.Label
	}
	if len(p.Props) > 0 {
		if node.Props == nil {
			node.Props = make(map[string]string, len(p.Props))
		}
		for k, v := range p.Props {
			node.Props[k] = v
		}
	}
	return nil
}

func (g *GraphView) applyNodeMoved(payload []byte) error {
	var p eventstore.NodeMovedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if node, ok := g.nodes[p.NodeID]; ok {
		node.X, node.Y, node.Z = p.X, p.Y, p.Z
	}
	return nil
}

func (g *GraphView) applyNodeRemoved(payload []byte) error {
	var p eventstore.NodeRemovedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	delete(g.nodes, p.NodeID)
	for to := range g.out[p.NodeID] {
		delete(g.in[to], p.NodeID)
	}
	delete(g.out, p.NodeID)
	for from := range g.in[p.NodeID] {
		delete(g.out[from], p.NodeID)
	}
	delete(g.in, p.NodeID)
	return nil
}

func (g *GraphView) applyEdgeConnected(payload []byte) error {
	var p eventstore.EdgeConnectedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if g.out[p.FromID] == nil {
		g.out[p.FromID] = make(map[string]string)
	}
	g.out[p.FromID][p.ToID] = p.Relation
	if g.in[p.ToID] == nil {
		g.in[p.ToID] = make(map[string]struct{})
	}
	g.in[p.ToID][p.FromID] = struct{}{}
	return nil
}

func (g *GraphView) applyEdgeRemoved(payload []byte) error {
	var p eventstore.EdgeRemovedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	delete(g.out[p.FromID], p.ToID)
	delete(g.in[p.ToID], p.FromID)
	return nil
}

func (g *GraphView) applyContentAdded(payload []byte) error {
	var p eventstore.ContentAddedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	node, ok := g.nodes[p.NodeID]
	if !ok {
		// Content for an unknown node still counts as a node sighting.
		node = &Node{ID: p.NodeID}
		g.nodes[p.NodeID] = node
	}
	node.Content = append(node.Content, p.Content)
	return nil
}

// Node returns a copy of the node, if present.
func (g *GraphView) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return copyNode(node), true
}

// Nodes returns nodes ordered by id, paginated by offset and limit. A limit
// of 0 means no limit.
func (g *GraphView) Nodes(offset, limit int) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]Node, len(ids))
	for i, id := range ids {
		result[i] = copyNode(g.nodes[id])
	}
	return result
}

// NodesByType returns all nodes of the given type, ordered by id.
func (g *GraphView) NodesByType(nodeType string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []Node
	for _, node := range g.nodes {
		if node.Type == nodeType {
			result = append(result, copyNode(node))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Neighbors returns the nodes reachable from id within depth hops, following
// edges in either direction, ordered by id. The start node is excluded.
func (g *GraphView) Neighbors(id string, depth int) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if depth < 1 {
		depth = 1
	}
	visited := map[string]bool{id: true}
	frontier := []string{id}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, current := range frontier {
			for to := range g.out[current] {
				if !visited[to] {
					visited[to] = true
					next = append(next, to)
				}
			}
			for from := range g.in[current] {
				if !visited[from] {
					visited[from] = true
					next = append(next, from)
				}
			}
		}
		frontier = next
	}

	var result []Node
	for nodeID := range visited {
		if nodeID == id {
			continue
		}
		if node, ok := g.nodes[nodeID]; ok {
			result = append(result, copyNode(node))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// NodeCount returns the number of nodes.
func (g *GraphView) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Summary returns current graph totals.
func (g *GraphView) Summary() Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := 0
	for _, targets := range g.out {
		edges += len(targets)
	}
	byType := make(map[string]int)
	for _, node := range g.nodes {
		byType[node.Type]++
	}
	return Summary{
		NodeCount:     len(g.nodes),
		EdgeCount:     edges,
		EventsApplied: g.count,
		NodesByType:   byType,
	}
}

func copyNode(node *Node) Node {
	cp := *node
	if node.Props != nil {
		cp.Props = make(map[string]string, len(node.Props))
		for k, v := range node.Props {
			cp.Props[k] = v
		}
	}
	if node.Content != nil {
		cp.Content = append([]string(nil), node.Content...)
	}
	return cp
}
