// Package execctx implements ExecutionContext: the per-run state bag
// carried through executors. The engine exclusively owns one instance per
// run; executors see it read-mostly and may mutate only execution-scope
// variables, never the workflow graph.
package execctx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tolgayilmaz86/nervemind/internal/domain"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
)

// CredentialResolver looks up and decrypts a Credential lazily, on executor
// request.
type CredentialResolver func(ctx context.Context, id uuid.UUID) (*domain.Credential, []byte, error)

// SubgraphRunner lets a wrapping node executor (loop/parallel/tryCatch/
// retry/rateLimit) invoke the engine recursively to run a single downstream
// node or an entire connected subgraph, without those executors importing
// the engine package directly.
type SubgraphRunner interface {
	// RunNode executes exactly one node (by id), downstream of the caller,
	// with the given input, returning its output map.
	RunNode(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error)
	// RunFrom executes the connected subgraph reachable from startNodeID
	// with the given input, returning the last-evaluated node's output.
	RunFrom(ctx context.Context, startNodeID string, input map[string]any) (map[string]any, error)
}

// WorkflowRunner lets the subworkflow executor recursively submit an
// entirely different, independently stored workflow (as opposed to
// SubgraphRunner, which stays within the current execution's own graph).
// Implemented by whatever owns workflow lookup and top-level
// ExecuteWorkflow submission (the engine, wired to a WorkflowStore).
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error)
}

// maxSubworkflowDepth is Open Question 4's recommended cap.
const maxSubworkflowDepth = 16

// Context is the per-run ExecutionContext. Safe for concurrent use by the
// goroutines of a single execution's parallel/wave dispatch.
type Context struct {
	ExecutionID string
	WorkflowID  string

	Bus *logging.Bus

	mu       sync.RWMutex
	global   map[string]any
	workflow map[string]any
	execVars map[string]any

	nodeOutputs map[string]map[string]any

	resolveCredential CredentialResolver

	cancelled atomic.Bool

	// StepMode gates per-node suspension; nil when step-debug is
	// not in use for this run.
	StepMode bool
	resumeCh chan struct{}

	// SubworkflowDepth tracks recursive subworkflow nesting; incremented by the subworkflow executor before a
	// recursive submit, checked against maxSubworkflowDepth.
	subworkflowDepth int

	// Verbose toggles full (not just preview) node-input/node-output
	// logging and HTTP request/response detail.
	Verbose bool

	// Runner backs wrapping executors' recursive dispatch; nil outside of
	// a live engine run (e.g. in unit tests of a single executor that
	// never recurses).
	Runner SubgraphRunner

	// Workflows backs the subworkflow executor's recursive submission of
	// an independently stored workflow; nil outside of a live engine run.
	Workflows WorkflowRunner

	// RetryBudget caps total retry attempts across every retry-wrapped node
	// in this run; nil means unlimited.
	RetryBudget RetryBudgeter
}

// RetryBudgeter is the narrow capability internal/exec.RetryBudget
// satisfies; declared here (rather than imported) to avoid execctx
// depending on the engine package that itself depends on execctx.
type RetryBudgeter interface {
	Allow() bool
}

// ConsumeRetryBudget reports whether one more retry attempt may be spent
// execution-wide, per optional retry budget. Always true
// when no budget is configured.
func (c *Context) ConsumeRetryBudget() bool {
	if c.RetryBudget == nil {
		return true
	}
	return c.RetryBudget.Allow()
}

// New constructs a fresh ExecutionContext, seeding the read-only
// global/workflow variable layers.
func New(executionID, workflowID string, bus *logging.Bus, global, workflow map[string]any) *Context {
	if global == nil {
		global = map[string]any{}
	}
	if workflow == nil {
		workflow = map[string]any{}
	}
	return &Context{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Bus:         bus,
		global:      global,
		workflow:    workflow,
		execVars:    map[string]any{},
		nodeOutputs: map[string]map[string]any{},
		// Buffered by one so a controller's ContinueStep, fired the instant
		// it observes the pause notification, is never dropped racing
		// against AwaitStep's own select entering.
		resumeCh: make(chan struct{}, 1),
	}
}

// SetCredentialResolver wires the lazy credential lookup the engine
// constructs from its CredentialStore.
func (c *Context) SetCredentialResolver(r CredentialResolver) { c.resolveCredential = r }

// ResolveCredential decrypts a credential by id. Never logs the secret.
func (c *Context) ResolveCredential(ctx context.Context, id uuid.UUID) (*domain.Credential, []byte, error) {
	if c.resolveCredential == nil {
		return nil, nil, fmt.Errorf("no credential resolver configured")
	}
	return c.resolveCredential(ctx, id)
}

// GetVariable resolves name against the layered scope execution < workflow
// < global is NOT the precedence: execution overrides workflow overrides
// global.
func (c *Context) GetVariable(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.execVars[name]; ok {
		return v, true
	}
	if v, ok := c.workflow[name]; ok {
		return v, true
	}
	v, ok := c.global[name]
	return v, ok
}

// SetVariable writes an execution-scope variable. Executors may mutate
// execution-scope variables but never the workflow graph.
func (c *Context) SetVariable(name string, value any) {
	c.mu.Lock()
	c.execVars[name] = value
	c.mu.Unlock()
	if c.Bus != nil {
		entry := logging.NewDataEntry(logging.CategoryVariable, c.ExecutionID, "", fmt.Sprintf("%s=%v", name, value))
		entry.Message = "variable set"
		entry.Context = map[string]any{"name": name}
		c.Bus.Emit(entry)
	}
}

// AllVariables returns a merged snapshot (execution overriding workflow
// overriding global) for expression evaluation.
func (c *Context) AllVariables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.global)+len(c.workflow)+len(c.execVars))
	for k, v := range c.global {
		out[k] = v
	}
	for k, v := range c.workflow {
		out[k] = v
	}
	for k, v := range c.execVars {
		out[k] = v
	}
	return out
}

// SetNodeOutput records a node's output map for downstream input merging.
func (c *Context) SetNodeOutput(nodeID string, output map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeOutputs[nodeID] = output
}

// NodeOutput returns the recorded output of nodeID, if it has executed.
func (c *Context) NodeOutput(nodeID string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.nodeOutputs[nodeID]
	return out, ok
}

// Cancel flips the cooperative cancellation flag.
func (c *Context) Cancel() { c.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (c *Context) Cancelled() bool { return c.cancelled.Load() }

// EnterSubworkflow increments the nesting depth, refusing past the 
// cap of 16.
func (c *Context) EnterSubworkflow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subworkflowDepth >= maxSubworkflowDepth {
		return fmt.Errorf("subworkflow nesting exceeds maximum depth of %d", maxSubworkflowDepth)
	}
	c.subworkflowDepth++
	return nil
}

// ExitSubworkflow decrements the nesting depth after a recursive submit
// returns.
func (c *Context) ExitSubworkflow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subworkflowDepth > 0 {
		c.subworkflowDepth--
	}
}

// SubworkflowDepth reports the current nesting depth, so a child
// execution's Context can be seeded with it when a subworkflow node
// dispatches a separate Engine.Submit rather than recursing in-process.
func (c *Context) SubworkflowDepth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subworkflowDepth
}

// SeedSubworkflowDepth initializes the nesting-depth counter from a
// parent run's SubworkflowDepth, so the cap accumulates across the
// separate Contexts a subworkflow dispatch creates instead of resetting to
// zero at every nesting level.
func (c *Context) SeedSubworkflowDepth(depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subworkflowDepth = depth
}

// AwaitStep blocks the calling (coordinator) goroutine until an external
// controller calls ContinueStep or CancelStepExecution. A
// no-op when StepMode is false.
func (c *Context) AwaitStep(ctx context.Context) error {
	if !c.StepMode {
		return nil
	}
	select {
	case <-c.resumeCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ContinueStep releases one AwaitStep suspension.
func (c *Context) ContinueStep() {
	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
}

// CancelStepExecution maps to cooperative cancellation per 
// ("Cancel maps to cooperative cancellation") and also releases any
// in-progress AwaitStep suspension so the engine can observe it promptly.
func (c *Context) CancelStepExecution() {
	c.Cancel()
	c.ContinueStep()
}
