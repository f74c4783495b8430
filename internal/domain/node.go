package domain

import "github.com/google/uuid"

// Node is a typed unit of work inside a Workflow; its Type selects a
// NodeExecutor from the registry. Immutable during a single execution.
type Node struct {
	id           uuid.UUID
	nodeType     string
	name         string
	parameters   map[string]any
	credentialID *uuid.UUID
	disabled     bool
	notes        string
}

// NewNode constructs a Node, normalising a nil parameters map to empty:
// parameters are never null.
func NewNode(id uuid.UUID, nodeType, name string, parameters map[string]any, credentialID *uuid.UUID, disabled bool, notes string) (*Node, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if nodeType == "" {
		return nil, NewDomainError(ErrCodeInvalidInput, "node type must not be blank", nil)
	}
	if name == "" {
		return nil, NewDomainError(ErrCodeInvalidInput, "node name must not be blank", nil)
	}
	if parameters == nil {
		parameters = map[string]any{}
	}
	return &Node{
		id:           id, nodeType: nodeType, name: name, parameters: parameters,
		credentialID: credentialID, disabled: disabled, notes: notes,
	}, nil
}

func (n *Node) ID() uuid.UUID { return n.id }
func (n *Node) Type() string { return n.nodeType }
func (n *Node) Name() string { return n.name }
func (n *Node) Disabled() bool { return n.disabled }
func (n *Node) Notes() string { return n.notes }
func (n *Node) CredentialID() *uuid.UUID { return n.credentialID }

// Parameters returns a shallow copy so callers (the engine's interpolation
// step) can safely mutate their own working copy without touching the
// Node's immutable state.
func (n *Node) Parameters() map[string]any {
	out := make(map[string]any, len(n.parameters))
	for k, v := range n.parameters {
		out[k] = v
	}
	return out
}
