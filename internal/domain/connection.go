package domain

import "github.com/google/uuid"

const defaultHandle = "main"

// Connection is a directed edge between a source node's output handle and a
// target node's input handle. Blank handles
// normalise to "main"; a Connection whose source equals its target is
// rejected at construction.
type Connection struct {
	id           uuid.UUID
	sourceNodeID uuid.UUID
	sourceOutput string
	targetNodeID uuid.UUID
	targetInput  string
	condition    string
}

func NewConnection(id, sourceNodeID uuid.UUID, sourceOutput string, targetNodeID uuid.UUID, targetInput string) (*Connection, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if sourceNodeID == targetNodeID {
		return nil, NewDomainError(ErrCodeInvalidInput, "self-loop connections are not allowed", nil)
	}
	if sourceOutput == "" {
		sourceOutput = defaultHandle
	}
	if targetInput == "" {
		targetInput = defaultHandle
	}
	return &Connection{
		id:           id, sourceNodeID: sourceNodeID, sourceOutput: sourceOutput,
		targetNodeID: targetNodeID, targetInput: targetInput,
	}, nil
}

func (c *Connection) ID() uuid.UUID { return c.id }
func (c *Connection) SourceNodeID() uuid.UUID { return c.sourceNodeID }
func (c *Connection) SourceOutput() string { return c.sourceOutput }
func (c *Connection) TargetNodeID() uuid.UUID { return c.targetNodeID }
func (c *Connection) TargetInput() string { return c.targetInput }

// Condition is an optional graph-level expr-lang predicate gating this
// Connection independently of output-handle routing.
func (c *Connection) Condition() string { return c.condition }

// SetCondition attaches a graph-level condition at import/decode time, before
// the Connection is added to a Workflow. Connections are otherwise immutable
// for the duration of an execution.
func (c *Connection) SetCondition(expr string) { c.condition = expr }
