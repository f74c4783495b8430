package exec

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
	"github.com/tolgayilmaz86/nervemind/internal/registry/builtin"
)

// Config tunes the engine's dispatch behaviour. Parallel/retry/circuit-
// breaker toggles are folded into the node-type registry itself (a
// workflow either has retry/parallel nodes in its graph or it doesn't), so
// this only carries the knobs the dispatch loop actually reads.
type Config struct {
	// MaxConcurrentNodes bounds the number of goroutines dispatched within a
	// single wave. Zero means unbounded.
	MaxConcurrentNodes int
	// DefaultNodeTimeout bounds every node dispatch, including RunNode
	// calls. The engine does not read a timeout from a node's own
	// parameters; executors with a timeoutMs setting apply it inside
	// Execute, still under this bound.
	DefaultNodeTimeout time.Duration
	// RetryBudget, when positive, caps total retry attempts across every
	// retry-wrapped node in a run.
	RetryBudget int
}

// DefaultConfig returns the engine's baseline numeric defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentNodes: 8,
		DefaultNodeTimeout: 30 * time.Second,
	}
}

var tracer = otel.Tracer("nervemind/exec")

// ErrCancelled is returned by a run's dispatch loop when cooperative
// cancellation (execctx.Context.Cancel, e.g. from a step-debug controller's
// cancelStepExecution()) stopped it, as opposed to the caller's own ctx
// being cancelled.
var ErrCancelled = errors.New("execution cancelled")

// Engine is the Execution Engine: it builds a Graph from a
// Workflow, computes evaluation order, and dispatches nodes wave by wave
// against a Registry Snapshot, emitting every transition on a logging.Bus.
// The dispatch loop is split into this coordinator plus the
// Graph/joinEvaluator/RetryBudget helpers so each piece stays independently
// testable.
type Engine struct {
	registry *registry.Registry
	bus      *logging.Bus
	config   Config

	workflows   domain.WorkflowStore
	executions  domain.ExecutionStore
	credentials domain.CredentialStore
	variables   domain.VariableStore

	metricsMu sync.Mutex
	metrics   map[string]*metricsCollector

	controllersMu sync.Mutex
	controllers   map[string]*execctx.Context
}

// New constructs an Engine. workflows/executions/credentials/variables may
// be nil in tests that only exercise a single in-memory workflow; a nil
// ExecutionStore simply means SaveExecution is never called.
func New(reg *registry.Registry, bus *logging.Bus, cfg Config, workflows domain.WorkflowStore, executions domain.ExecutionStore, credentials domain.CredentialStore, variables domain.VariableStore) *Engine {
	if bus == nil {
		bus = logging.NewBus()
	}
	return &Engine{
		registry:    reg,
		bus:         bus,
		config:      cfg,
		workflows:   workflows,
		executions:  executions,
		credentials: credentials,
		variables:   variables,
		metrics:     map[string]*metricsCollector{},
		controllers: map[string]*execctx.Context{},
	}
}

// run is the mutable per-execution state the engine's dispatch loop and its
// SubgraphRunner/WorkflowRunner callbacks close over.
type run struct {
	engine *Engine

	workflow *domain.Workflow
	graph    *Graph
	snapshot registry.Snapshot
	join     *joinEvaluator

	execution *domain.Execution
	execCtx   *execctx.Context
	metrics   *metricsCollector

	terminal map[uuid.UUID]bool           // node id -> reached a terminal NodeExecutionStatus
	ran      map[uuid.UUID]bool           // node id -> its executor actually ran (not skipped)
	outputs  map[uuid.UUID]map[string]any

	stepIndex  int
	totalNodes int
}

// Submit is the entry point: build the graph, allocate a PENDING
// Execution, and run it to a terminal status. triggerInput seeds the node
// input for every entry node.
func (e *Engine) Submit(ctx context.Context, workflow *domain.Workflow, triggerKind domain.TriggerKind, triggerInput map[string]any, stepMode bool) (*domain.Execution, error) {
	return e.submit(ctx, workflow, triggerKind, triggerInput, stepMode, 0)
}

// submit is Submit's implementation, additionally taking the caller's
// current subworkflow nesting depth so a subworkflow node's recursive
// dispatch (RunWorkflow below, which builds a brand-new Context for the
// child execution) accumulates the cap across nesting levels instead of
// resetting it to zero at every level.
func (e *Engine) submit(ctx context.Context, workflow *domain.Workflow, triggerKind domain.TriggerKind, triggerInput map[string]any, stepMode bool, subworkflowDepth int) (*domain.Execution, error) {
	if err := workflow.ValidateStructure(); err != nil {
		return nil, err
	}

	execution := domain.NewExecution(uuid.Nil, workflow.ID(), triggerKind, triggerInput)

	global, workflowVars, err := e.loadVariables(ctx, workflow.ID())
	if err != nil {
		return nil, fmt.Errorf("load variables: %w", err)
	}

	execCtx := execctx.New(execution.ID().String(), workflow.ID().String(), e.bus, global, workflowVars)
	execCtx.StepMode = stepMode
	execCtx.SeedSubworkflowDepth(subworkflowDepth)
	if e.credentials != nil {
		execCtx.SetCredentialResolver(e.credentials.GetCredential)
	}
	if e.config.RetryBudget > 0 {
		execCtx.RetryBudget = NewRetryBudget(e.config.RetryBudget)
	}

	mc := newMetricsCollector(execution.ID().String())
	e.metricsMu.Lock()
	e.metrics[execution.ID().String()] = mc
	e.metricsMu.Unlock()

	e.controllersMu.Lock()
	e.controllers[execution.ID().String()] = execCtx
	e.controllersMu.Unlock()
	defer func() {
		e.controllersMu.Lock()
		delete(e.controllers, execution.ID().String())
		e.controllersMu.Unlock()
	}()

	r := &run{
		engine:    e,
		workflow:  workflow,
		graph:     BuildGraph(workflow),
		snapshot:  e.registry.Snapshot(),
		join:      newJoinEvaluator(),
		execution: execution,
		execCtx:   execCtx,
		metrics:   mc,
		terminal:  map[uuid.UUID]bool{},
		ran:       map[uuid.UUID]bool{},
		outputs:   map[uuid.UUID]map[string]any{},
	}
	execCtx.Runner = r
	execCtx.Workflows = r

	if err := execution.Start(time.Now()); err != nil {
		return nil, err
	}
	e.bus.Emit(logging.NewExecutionStart(execution.ID().String(), workflow.ID().String()))
	e.persist(ctx, execution)

	start := time.Now()
	runErr := r.execute(ctx, triggerInput)
	mc.finish(time.Since(start))

	switch {
	case runErr != nil && (errors.Is(runErr, ErrCancelled) || ctx.Err() != nil):
		_ = execution.Cancel(time.Now())
	case runErr != nil:
		_ = execution.Fail(time.Now(), runErr.Error())
	default:
		_ = execution.Complete(time.Now(), r.lastOutputs())
	}
	e.bus.Emit(logging.NewExecutionEnd(execution.ID().String(), string(execution.Status()), time.Since(start)))
	e.persist(ctx, execution)

	return execution, nil
}

// GetMetrics returns the metrics summary for a prior or
// in-flight execution, or false if no such execution was ever submitted
// through this Engine instance.
func (e *Engine) GetMetrics(executionID string) (Metrics, bool) {
	e.metricsMu.Lock()
	mc, ok := e.metrics[executionID]
	e.metricsMu.Unlock()
	if !ok {
		return Metrics{}, false
	}
	return mc.snapshot(), true
}

// ContinueStep releases the step-debug suspension of a running, in-step-mode
// execution. Reports false if no such
// execution is currently in flight through this Engine.
func (e *Engine) ContinueStep(executionID string) bool {
	e.controllersMu.Lock()
	c, ok := e.controllers[executionID]
	e.controllersMu.Unlock()
	if !ok {
		return false
	}
	c.ContinueStep()
	return true
}

// CancelStep aborts a running, in-step-mode execution, which maps to cooperative cancellation.
func (e *Engine) CancelStep(executionID string) bool {
	e.controllersMu.Lock()
	c, ok := e.controllers[executionID]
	e.controllersMu.Unlock()
	if !ok {
		return false
	}
	c.CancelStepExecution()
	return true
}

func (e *Engine) persist(ctx context.Context, execution *domain.Execution) {
	if e.executions == nil {
		return
	}
	_ = e.executions.SaveExecution(ctx, execution)
}

func (e *Engine) loadVariables(ctx context.Context, workflowID uuid.UUID) (global, workflow map[string]any, err error) {
	global   = map[string]any{}
	workflow = map[string]any{}
	if e.variables == nil {
		return global, workflow, nil
	}
	globals, err := e.variables.ListVariables(ctx, domain.ScopeGlobal, nil)
	if err != nil {
		return nil, nil, err
	}
	for _, v := range globals {
		global[v.Name] = v.Value
	}
	workflowVars, err := e.variables.ListVariables(ctx, domain.ScopeWorkflow, &workflowID)
	if err != nil {
		return nil, nil, err
	}
	for _, v := range workflowVars {
		workflow[v.Name] = v.Value
	}
	return global, workflow, nil
}

// execute runs every layer of the graph in order, fanning each layer's
// ready nodes out across a bounded pool.
func (r *run) execute(ctx context.Context, triggerInput map[string]any) error {
	layers, discarded, err := r.graph.Layering()
	if err != nil {
		return err
	}
	for _, d := range discarded {
		r.engine.bus.Emit(logging.NewError(r.execution.ID().String(), d.Connection.SourceNodeID().String(), d.Reason, nil))
	}
	for _, layer := range layers {
		r.totalNodes += len(layer)
	}

	for _, layer := range layers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.execCtx.Cancelled() {
			return ErrCancelled
		}
		if err := r.executeWave(ctx, layer, triggerInput); err != nil {
			return err
		}
	}
	return nil
}

// executeWave dispatches every ready node of one layer concurrently, bounded
// by Config.MaxConcurrentNodes, and waits for all of them.
func (r *run) executeWave(ctx context.Context, layer []uuid.UUID, triggerInput map[string]any) error {
	limit := r.engine.config.MaxConcurrentNodes
	if limit <= 0 {
		limit = len(layer)
		if limit == 0 {
			limit = 1
		}
	}
	sem := make(chan struct{}, limit)
	errCh := make(chan error, len(layer))
	done := make(chan struct{}, len(layer))

	scope := r.execCtx.AllVariables()

	dispatched := 0
	for _, nodeID := range layer {
		node, ok := r.graph.Node(nodeID)
		if !ok {
			continue
		}
		ready, err := r.join.evaluateReadiness(r.graph, nodeID, r.terminal, r.outputs, r.ran, scope)
		if err != nil {
			return err
		}
		if !ready.Ready {
			// A predecessor hasn't reached a terminal state in this wave
			// (possible with a BFS layering when a join's deepest
			// predecessor sits in the same layer due to a discarded cyclic
			// edge); treat as unreachable this run and skip.
			r.skipNode(node, "predecessor has not completed")
			continue
		}
		if node.Disabled() {
			r.skipNode(node, "node disabled")
			continue
		}
		if ready.AnyIncoming && !ready.AnyActive {
			r.skipNode(node, "no active incoming edge")
			continue
		}

		dispatched++
		sem <- struct{}{}
		go func(n *domain.Node) {
			defer func() { <-sem; done <- struct{}{} }()
			input := r.buildInput(n, triggerInput)
			if err := r.runNodeDispatch(ctx, n, input); err != nil {
				errCh <- err
			}
		}(node)
	}

	for i := 0; i < dispatched; i++ {
		<-done
	}
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// buildInput merges every active predecessor's output with the trigger
// input for entry nodes.
func (r *run) buildInput(node *domain.Node, triggerInput map[string]any) map[string]any {
	incoming := r.graph.Incoming(node.ID())
	if len(incoming) == 0 {
		out := make(map[string]any, len(triggerInput))
		for k, v := range triggerInput {
			out[k] = v
		}
		return out
	}
	merged := map[string]any{}
	order := map[uuid.UUID]int{}
	for i, n := range r.workflow.Nodes() {
		order[n.ID()] = i
	}
	incoming = append([]*domain.Connection(nil), incoming...)
	sort.SliceStable(incoming, func(i, j int) bool { return order[incoming[i].SourceNodeID()] < order[incoming[j].SourceNodeID()] })
	for _, c := range incoming {
		out, ok := r.outputs[c.SourceNodeID()]
		if !ok {
			continue
		}
		for k, v := range out {
			if k == builtin.HandleKey {
				continue
			}
			merged[k] = v
		}
		r.engine.bus.Emit(logging.NewDataFlow(r.execution.ID().String(), c.SourceNodeID().String(), node.ID().String(), c.SourceOutput()))
	}
	return merged
}

// runNodeDispatch executes one node: resolves its executor, interpolates
// parameters, runs it under a per-node timeout and OTel span, and records
// the NodeExecution/bus events in start->input->output->end order.
func (r *run) runNodeDispatch(ctx context.Context, node *domain.Node, input map[string]any) error {
	executor, ok := r.snapshot.Resolve(node.Type())
	if !ok {
		msg := fmt.Sprintf("no executor registered for node type %q", node.Type())
		r.failNode(node, msg)
		return domain.NewDomainError(domain.ErrCodeNotFound, msg, nil)
	}

	ctx, span := tracer.Start(ctx, "node."+node.Type(), trace.WithAttributes(
		attribute.String("node.id", node.ID().String()),
		attribute.String("node.name", node.Name()),
	))
	defer span.End()

	started := time.Now()
	r.execution.StartNode(node, started, input)
	r.engine.bus.Emit(logging.NewNodeStart(r.execution.ID().String(), node.ID().String(), node.Name(), node.Type()))
	inputEntry := logging.NewDataEntry(logging.CategoryNodeInput, r.execution.ID().String(), node.ID().String(), fmt.Sprint(input))
	if !r.execCtx.Verbose {
		inputEntry.Full = ""
	}
	r.engine.bus.Emit(inputEntry)

	scope := r.execCtx.AllVariables()
	params := interpolateParams(node.Parameters(), scope)

	timeout := r.engine.config.DefaultNodeTimeout
	nodeCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := executor.Execute(nodeCtx, params, input, r.execCtx)
	duration := time.Since(started)
	r.metrics.recordNode(node.Type(), nodeExecStatusString(err), duration)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		status := domain.NodeStatusFailed
		if ctx.Err() != nil || r.execCtx.Cancelled() {
			status = domain.NodeStatusCancelled
		}
		r.execution.FailNode(node.ID(), time.Now(), status, err.Error())
		r.setOutputLocked(node.ID(), nil, false)
		r.engine.bus.Emit(logging.NewError(r.execution.ID().String(), node.ID().String(), "node execution failed", err))
		r.engine.bus.Emit(logging.NewNodeEnd(r.execution.ID().String(), node.ID().String(), string(status), duration))
		return err
	}

	outputEntry := logging.NewDataEntry(logging.CategoryNodeOutput, r.execution.ID().String(), node.ID().String(), fmt.Sprint(output))
	if !r.execCtx.Verbose {
		outputEntry.Full = ""
	}
	r.engine.bus.Emit(outputEntry)
	r.recordUsageTokens(output)
	r.completeNode(node, output)
	r.engine.bus.Emit(logging.NewNodeEnd(r.execution.ID().String(), node.ID().String(), "SUCCESS", duration))

	r.stepIndex++
	if r.execCtx.StepMode {
		r.engine.bus.Emit(logging.NewPause(r.execution.ID().String(), node.ID().String(), node.Name(), r.stepIndex, r.totalNodes))
		if err := r.execCtx.AwaitStep(ctx); err != nil {
			return err
		}
	}
	return nil
}

func nodeExecStatusString(err error) string {
	if err != nil {
		return "FAILED"
	}
	return "SUCCESS"
}

// recordUsageTokens folds an llmChat-style "_usage.totalTokens" field (see
// builtin.LLMChat.Execute) into this run's metrics, if present.
func (r *run) recordUsageTokens(output map[string]any) {
	usage, ok := output["_usage"].(map[string]any)
	if !ok {
		return
	}
	switch v := usage["totalTokens"].(type) {
	case int:
		r.metrics.recordAITokens(v)
	case int64:
		r.metrics.recordAITokens(int(v))
	case float64:
		r.metrics.recordAITokens(int(v))
	}
}

func (r *run) completeNode(node *domain.Node, output map[string]any) {
	at := time.Now()
	r.execution.CompleteNode(node.ID(), at, output)
	r.execCtx.SetNodeOutput(node.ID().String(), output)
	r.setOutputLocked(node.ID(), output, true)
}

func (r *run) failNode(node *domain.Node, message string) {
	at := time.Now()
	r.execution.FailNode(node.ID(), at, domain.NodeStatusFailed, message)
	r.setOutputLocked(node.ID(), nil, false)
}

func (r *run) skipNode(node *domain.Node, reason string) {
	r.execution.SkipNode(node, time.Now())
	r.engine.bus.Emit(logging.NewNodeSkip(r.execution.ID().String(), node.ID().String(), reason))
	r.setOutputLocked(node.ID(), nil, false)
}

// setOutputLocked records a node's terminal disposition for readiness
// evaluation of its successors. ran distinguishes "executed and may have
// written a handle/condition-relevant output" from "terminal but never ran"
// (skipped/failed), matching edgeActive's sourceRan semantics.
func (r *run) setOutputLocked(nodeID uuid.UUID, output map[string]any, ran bool) {
	r.terminal[nodeID] = true
	r.ran[nodeID] = ran
	if output != nil {
		r.outputs[nodeID] = output
	}
}

// lastOutputs returns the output of every exit node (no outgoing
// connections) as the Execution's overall OutputData.
func (r *run) lastOutputs() map[string]any {
	out := map[string]any{}
	for _, node := range r.workflow.Nodes() {
		if len(r.graph.Outgoing(node.ID())) != 0 {
			continue
		}
		if o, ok := r.outputs[node.ID()]; ok {
			out[node.Name()] = o
		}
	}
	return out
}

// RunNode implements execctx.SubgraphRunner for wrapping executors (retry,
// rateLimit) that dispatch a single downstream node directly rather than
// through the wave scheduler; loop, parallel and tryCatch reach it through
// RunFrom.
func (r *run) RunNode(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
	node, err := r.graph.NodeByIDString(nodeID)
	if err != nil {
		return nil, err
	}
	executor, ok := r.snapshot.Resolve(node.Type())
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("no executor registered for node type %q", node.Type()), nil)
	}
	scope := r.execCtx.AllVariables()
	params := interpolateParams(node.Parameters(), scope)

	attempt := r.execution.IncrementAttempt(node.ID())
	started := time.Now()
	if attempt == 0 {
		r.execution.StartNode(node, started, input)
	}
	r.engine.bus.Emit(logging.NewNodeStart(r.execution.ID().String(), node.ID().String(), node.Name(), node.Type()))

	timeout := r.engine.config.DefaultNodeTimeout
	nodeCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, execErr := executor.Execute(nodeCtx, params, input, r.execCtx)
	duration := time.Since(started)
	r.metrics.recordNode(node.Type(), nodeExecStatusString(execErr), duration)
	if execErr != nil {
		r.failNode(node, execErr.Error())
		r.engine.bus.Emit(logging.NewNodeEnd(r.execution.ID().String(), node.ID().String(), "FAILED", duration))
		return nil, execErr
	}
	r.recordUsageTokens(output)
	r.completeNode(node, output)
	r.engine.bus.Emit(logging.NewNodeEnd(r.execution.ID().String(), node.ID().String(), "SUCCESS", duration))
	return output, nil
}

// RunFrom implements execctx.SubgraphRunner: it evaluates the connected
// subgraph reachable from startNodeID breadth-first, reusing the same
// readiness/join logic as the top-level wave scheduler, and returns the last
// node's output. Used by the parallel executor's per-branch dispatch.
func (r *run) RunFrom(ctx context.Context, startNodeID string, input map[string]any) (map[string]any, error) {
	start, err := r.graph.NodeByIDString(startNodeID)
	if err != nil {
		return nil, err
	}

	var last map[string]any
	visited := map[uuid.UUID]bool{}
	queue := []uuid.UUID{start.ID()}
	first := true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		node, ok := r.graph.Node(id)
		if !ok {
			continue
		}

		var nodeInput map[string]any
		if first {
			nodeInput = input
			first     = false
		} else {
			nodeInput = r.buildInput(node, nil)
		}

		out, err := r.RunNode(ctx, id.String(), nodeInput)
		if err != nil {
			return nil, err
		}
		last = out

		for _, c := range r.graph.Outgoing(id) {
			active, err := r.join.edgeActive(c, out, true, r.execCtx.AllVariables())
			if err != nil {
				return nil, err
			}
			if active && !visited[c.TargetNodeID()] {
				queue = append(queue, c.TargetNodeID())
			}
		}
	}
	return last, nil
}

// RunWorkflow implements execctx.WorkflowRunner for the subworkflow
// executor: looks the target workflow up via WorkflowStore and submits it
// through this same Engine, returning its final OutputData.
func (r *run) RunWorkflow(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error) {
	if r.engine.workflows == nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "no workflow store configured for subworkflow dispatch", nil)
	}
	id, err := uuid.Parse(workflowID)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow id %q: %w", workflowID, err)
	}
	wf, err := r.engine.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	execution, err := r.engine.submit(ctx, wf, domain.TriggerManual, input, false, r.execCtx.SubworkflowDepth())
	if err != nil {
		return nil, err
	}
	if execution.Status() != domain.StatusSuccess {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidState, fmt.Sprintf("subworkflow %s did not succeed: %s", workflowID, execution.ErrorMessage()), nil)
	}
	return execution.OutputData(), nil
}
