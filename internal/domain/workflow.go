package domain

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Workflow is a directed graph of Nodes connected by Connections.
// Loaded read-only by the engine per run; edited only by the owning
// application (out of scope here).
type Workflow struct {
	id          uuid.UUID
	name        string
	nodes       map[uuid.UUID]*Node
	nodeOrder   []uuid.UUID
	connections map[uuid.UUID]*Connection
	settings    map[string]any
	triggerKind TriggerKind
}

// NewWorkflow constructs an empty Workflow ready to accept nodes/connections.
func NewWorkflow(id uuid.UUID, name string, settings map[string]any, triggerKind TriggerKind) (*Workflow, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if name == "" {
		return nil, NewDomainError(ErrCodeInvalidInput, "workflow name must not be blank", nil)
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return &Workflow{
		id:          id, name: name,
		nodes:       map[uuid.UUID]*Node{},
		connections: map[uuid.UUID]*Connection{},
		settings:    settings,
		triggerKind: triggerKind,
	}, nil
}

func (w *Workflow) ID() uuid.UUID { return w.id }
func (w *Workflow) Name() string { return w.name }
func (w *Workflow) Settings() map[string]any { return w.settings }
func (w *Workflow) TriggerKind() TriggerKind { return w.triggerKind }

// AddNode appends a node, enforcing unique node ids.
func (w *Workflow) AddNode(n *Node) error {
	if _, exists := w.nodes[n.ID()]; exists {
		return NewDomainError(ErrCodeAlreadyExists, fmt.Sprintf("node id %s already present in workflow", n.ID()), nil)
	}
	w.nodes[n.ID()] = n
	w.nodeOrder = append(w.nodeOrder, n.ID())
	return nil
}

// AddConnection appends a connection, enforcing that both endpoints exist.
func (w *Workflow) AddConnection(c *Connection) error {
	if _, ok := w.nodes[c.SourceNodeID()]; !ok {
		return NewDomainError(ErrCodeInvalidInput, fmt.Sprintf("connection %s references unknown source node %s", c.ID(), c.SourceNodeID()), nil)
	}
	if _, ok := w.nodes[c.TargetNodeID()]; !ok {
		return NewDomainError(ErrCodeInvalidInput, fmt.Sprintf("connection %s references unknown target node %s", c.ID(), c.TargetNodeID()), nil)
	}
	w.connections[c.ID()] = c
	return nil
}

// Node looks up a node by id.
func (w *Workflow) Node(id uuid.UUID) (*Node, bool) {
	n, ok := w.nodes[id]
	return n, ok
}

// Nodes returns all nodes in declaration order.
func (w *Workflow) Nodes() []*Node {
	out := make([]*Node, 0, len(w.nodeOrder))
	for _, id := range w.nodeOrder {
		out = append(out, w.nodes[id])
	}
	return out
}

// Connections returns all connections, sorted by id for deterministic
// iteration in tests.
func (w *Workflow) Connections() []*Connection {
	out := make([]*Connection, 0, len(w.connections))
	for _, c := range w.connections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out
}

// OutgoingFrom returns connections whose source is the given node.
func (w *Workflow) OutgoingFrom(nodeID uuid.UUID) []*Connection {
	var out []*Connection
	for _, c := range w.Connections() {
		if c.SourceNodeID() == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// IncomingTo returns connections whose target is the given node.
func (w *Workflow) IncomingTo(nodeID uuid.UUID) []*Connection {
	var out []*Connection
	for _, c := range w.Connections() {
		if c.TargetNodeID() == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// EntryNodes returns nodes with no incoming connections.
func (w *Workflow) EntryNodes() []*Node {
	hasIncoming := map[uuid.UUID]bool{}
	for _, c := range w.connections {
		hasIncoming[c.TargetNodeID()] = true
	}
	var out []*Node
	for _, id := range w.nodeOrder {
		if !hasIncoming[id] {
			out = append(out, w.nodes[id])
		}
	}
	return out
}

// ValidateStructure checks the invariants a run requires: at least one
// node, and no connection referencing a non-existent node (already
// enforced at AddConnection time, re-checked here for workflows
// reconstructed from storage).
func (w *Workflow) ValidateStructure() error {
	if len(w.nodes) == 0 {
		return NewDomainError(ErrCodeValidationFailed, "workflow has no nodes", nil)
	}
	for _, c := range w.connections {
		if _, ok := w.nodes[c.SourceNodeID()]; !ok {
			return NewDomainError(ErrCodeValidationFailed, fmt.Sprintf("dangling connection source %s", c.SourceNodeID()), nil)
		}
		if _, ok := w.nodes[c.TargetNodeID()]; !ok {
			return NewDomainError(ErrCodeValidationFailed, fmt.Sprintf("dangling connection target %s", c.TargetNodeID()), nil)
		}
	}
	return nil
}

// Diagnostics returns the non-fatal validation diagnostics: "no trigger
// node" and "disconnected node" (a node with neither incoming nor outgoing
// connections, excluding single-node workflows).
func (w *Workflow) Diagnostics(triggerNodeTypes map[string]bool) []string {
	var diags []string
	entries := w.EntryNodes()
	triggerEntries := 0
	for _, n := range entries {
		if triggerNodeTypes[n.Type()] {
			triggerEntries++
		}
	}
	if triggerEntries == 0 {
		diags = append(diags, "no trigger node")
	}
	if len(w.nodes) > 1 {
		connected := map[uuid.UUID]bool{}
		for _, c := range w.connections {
			connected[c.SourceNodeID()] = true
			connected[c.TargetNodeID()] = true
		}
		for _, id := range w.nodeOrder {
			if !connected[id] {
				diags = append(diags, fmt.Sprintf("disconnected node %s", id))
			}
		}
	}
	return diags
}
