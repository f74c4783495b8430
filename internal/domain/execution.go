package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeExecution is the record of one node's evaluation within an Execution
//. Exists for every node actually evaluated; disabled/unreached
// nodes get a SKIPPED record instead of no record at all.
type NodeExecution struct {
	NodeID       uuid.UUID
	NodeName     string
	NodeType     string
	Status       NodeExecutionStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	InputData    map[string]any
	OutputData   map[string]any
	ErrorMessage string
	AttemptCount int
}

// Execution is one end-to-end run of a Workflow against a trigger input
//. Mutated only through its command methods, which enforce the
// state machine of; repositories store snapshots but never call
// these methods themselves.
type Execution struct {
	mu sync.Mutex

	id          uuid.UUID
	workflowID  uuid.UUID
	triggerKind TriggerKind
	status      ExecutionStatus
	startedAt   time.Time
	finishedAt  time.Time

	inputData    map[string]any
	outputData   map[string]any
	errorMessage string

	nodeExecutions []*NodeExecution
	byNodeID       map[uuid.UUID]*NodeExecution
}

// NewExecution allocates a PENDING Execution.
func NewExecution(id, workflowID uuid.UUID, triggerKind TriggerKind, inputData map[string]any) *Execution {
	if id == uuid.Nil {
		id = uuid.New()
	}
	if inputData == nil {
		inputData = map[string]any{}
	}
	return &Execution{
		id:       id, workflowID: workflowID, triggerKind: triggerKind,
		status:   StatusPending, inputData: inputData,
		byNodeID: map[uuid.UUID]*NodeExecution{},
	}
}

// ReconstructExecution rebuilds an Execution from persisted state (the
// storage layer's row shape), bypassing the command-method state machine
// validation since the rows are already known-consistent. Only
// internal/storage packages should call this; everything else must go
// through the command methods.
func ReconstructExecution(
	id, workflowID uuid.UUID,
	triggerKind TriggerKind,
	status      ExecutionStatus,
	startedAt, finishedAt time.Time,
	inputData, outputData map[string]any,
	errorMessage   string,
	nodeExecutions []*NodeExecution,
) *Execution {
	if inputData == nil {
		inputData = map[string]any{}
	}
	e := &Execution{
		id:             id, workflowID: workflowID, triggerKind: triggerKind, status: status,
		startedAt:      startedAt, finishedAt: finishedAt,
		inputData:      inputData, outputData: outputData, errorMessage: errorMessage,
		nodeExecutions: nodeExecutions,
		byNodeID:       make(map[uuid.UUID]*NodeExecution, len(nodeExecutions)),
	}
	for _, ne := range nodeExecutions {
		e.byNodeID[ne.NodeID] = ne
	}
	return e
}

func (e *Execution) ID() uuid.UUID { return e.id }
func (e *Execution) WorkflowID() uuid.UUID { return e.workflowID }
func (e *Execution) TriggerKind() TriggerKind { return e.triggerKind }

func (e *Execution) Status() ExecutionStatus {
	e.mu.Lock()
	defer  e.mu.Unlock()
	return e.status
}

func (e *Execution) StartedAt() time.Time { e.mu.Lock(); defer e.mu.Unlock(); return e.startedAt }
func (e *Execution) FinishedAt() time.Time { e.mu.Lock(); defer e.mu.Unlock(); return e.finishedAt }

func (e *Execution) ErrorMessage() string {
	e.mu.Lock()
	defer  e.mu.Unlock()
	return e.errorMessage
}

func (e *Execution) OutputData() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.outputData))
	for k, v := range e.outputData {
		out[k] = v
	}
	return out
}

func (e *Execution) InputData() map[string]any {
	out := make(map[string]any, len(e.inputData))
	for k, v := range e.inputData {
		out[k] = v
	}
	return out
}

// NodeExecutions returns the ordered, evaluation-order list of per-node
// records.
func (e *Execution) NodeExecutions() []*NodeExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*NodeExecution, len(e.nodeExecutions))
	copy(out, e.nodeExecutions)
	return out
}

// Start transitions PENDING -> RUNNING.
func (e *Execution) Start(at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.CanTransitionTo(StatusRunning) {
		return NewDomainError(ErrCodeInvalidState, "cannot start execution from status "+string(e.status), nil)
	}
	e.status = StatusRunning
	e.startedAt = at
	return nil
}

// Wait transitions RUNNING -> WAITING.
func (e *Execution) Wait() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.CanTransitionTo(StatusWaiting) {
		return NewDomainError(ErrCodeInvalidState, "cannot wait from status "+string(e.status), nil)
	}
	e.status = StatusWaiting
	return nil
}

// Resume transitions WAITING -> RUNNING.
func (e *Execution) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.CanTransitionTo(StatusRunning) {
		return NewDomainError(ErrCodeInvalidState, "cannot resume from status "+string(e.status), nil)
	}
	e.status = StatusRunning
	return nil
}

// StartNode appends a RUNNING NodeExecution record.
func (e *Execution) StartNode(node *Node, at time.Time, input map[string]any) *NodeExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	ne := &NodeExecution{
		NodeID: node.ID(), NodeName: node.Name(), NodeType: node.Type(),
		Status: NodeStatusRunning, StartedAt: at, InputData: input,
	}
	e.nodeExecutions = append(e.nodeExecutions, ne)
	e.byNodeID[node.ID()] = ne
	return ne
}

// CompleteNode marks a node SUCCESS with its output.
func (e *Execution) CompleteNode(nodeID uuid.UUID, at time.Time, output map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ne, ok := e.byNodeID[nodeID]; ok {
		ne.Status = NodeStatusSuccess
		ne.FinishedAt = at
		ne.OutputData = output
	}
}

// FailNode marks a node FAILED (or CANCELLED, per Open Question 1) with an
// error message.
func (e *Execution) FailNode(nodeID uuid.UUID, at time.Time, status NodeExecutionStatus, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ne, ok := e.byNodeID[nodeID]; ok {
		ne.Status = status
		ne.FinishedAt = at
		ne.ErrorMessage = message
	}
}

// SkipNode appends a SKIPPED NodeExecution without invoking any executor.
func (e *Execution) SkipNode(node *Node, at time.Time) *NodeExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	ne := &NodeExecution{
		NodeID: node.ID(), NodeName: node.Name(), NodeType: node.Type(),
		Status: NodeStatusSkipped, StartedAt: at, FinishedAt: at,
	}
	e.nodeExecutions = append(e.nodeExecutions, ne)
	e.byNodeID[node.ID()] = ne
	return ne
}

// IncrementAttempt bumps the attempt counter on an existing NodeExecution
// before a retry re-invocation.
func (e *Execution) IncrementAttempt(nodeID uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ne, ok := e.byNodeID[nodeID]; ok {
		ne.AttemptCount++
		return ne.AttemptCount
	}
	return 0
}

// Complete transitions RUNNING -> SUCCESS, recording the final outputData.
func (e *Execution) Complete(at time.Time, outputData map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.CanTransitionTo(StatusSuccess) {
		return NewDomainError(ErrCodeInvalidState, "cannot complete from status "+string(e.status), nil)
	}
	e.status = StatusSuccess
	e.finishedAt = at
	e.outputData = outputData
	return nil
}

// Fail transitions RUNNING -> FAILED.
func (e *Execution) Fail(at time.Time, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.CanTransitionTo(StatusFailed) {
		return NewDomainError(ErrCodeInvalidState, "cannot fail from status "+string(e.status), nil)
	}
	e.status = StatusFailed
	e.finishedAt = at
	e.errorMessage = message
	return nil
}

// Cancel transitions RUNNING/WAITING -> CANCELLED.
func (e *Execution) Cancel(at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.CanTransitionTo(StatusCancelled) {
		return NewDomainError(ErrCodeInvalidState, "cannot cancel from status "+string(e.status), nil)
	}
	e.status = StatusCancelled
	e.finishedAt = at
	return nil
}
