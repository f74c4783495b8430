// Package trigger is the Trigger Dispatcher: the single owner of every
// external stimulus that can start a workflow run, cron timers for
// schedule triggers, filesystem watches for fileEvent triggers, and
// webhook HTTP intake, converting each into a Submitter.Submit call. A
// single owning goroutine serializes every registration and fire so
// callers only ever add/remove requests over a work queue.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
)

// Submitter is the engine capability the dispatcher needs: turning a fired
// trigger into a running Execution. *exec.Engine satisfies this.
type Submitter interface {
	Submit(ctx context.Context, workflow *domain.Workflow, triggerKind domain.TriggerKind, triggerInput map[string]any, stepMode bool) (*domain.Execution, error)
}

const (
	typeSchedule  = "scheduleTrigger"
	typeWebhook   = "webhookTrigger"
	typeFileEvent = "fileEventTrigger"
)

type scheduleEntry struct {
	nodeID uuid.UUID
	cronID cron.EntryID
}

type fileWatch struct {
	nodeID uuid.UUID
	path   string
}

type webhookRoute struct {
	workflowID uuid.UUID
	nodeID     uuid.UUID
}

type addRequest struct {
	workflow *domain.Workflow
	done     chan error
}

type removeRequest struct {
	workflowID uuid.UUID
	done       chan error
}

type fireRequest struct {
	workflowID  uuid.UUID
	triggerKind domain.TriggerKind
	input       map[string]any
}

// Dispatcher owns the cron timer set, the fsnotify watch set and the
// webhook route table. A single goroutine (run) serializes every
// mutation of that state; ServeHTTP reads the webhook route table under
// its own lock and hands each fire to the owning goroutine over the
// buffered fires queue, so an inbound request blocks only while that
// queue is full.
type Dispatcher struct {
	submitter Submitter
	workflows domain.WorkflowStore
	bus       *logging.Bus

	cronSched *cron.Cron
	watcher   *fsnotify.Watcher

	adds    chan addRequest
	removes chan removeRequest
	fires   chan fireRequest

	routeMu       sync.RWMutex
	webhookRoutes map[string]webhookRoute // "METHOD /path" -> route

	schedules map[uuid.UUID][]scheduleEntry // workflow id -> cron entries it owns
	watches   map[uuid.UUID][]fileWatch     // workflow id -> paths it watches

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Dispatcher. workflows resolves a fired trigger's
// workflow id back to a *domain.Workflow (it may have changed since
// registration, so fire() always reloads rather than reusing AddWorkflow's
// snapshot). Call Start to begin the owning goroutine plus cron and
// fsnotify loops; call Stop to tear them down.
func New(submitter Submitter, workflows domain.WorkflowStore, bus *logging.Bus) (*Dispatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Dispatcher{
		submitter:     submitter,
		workflows:     workflows,
		bus:           bus,
		cronSched:     cron.New(),
		watcher:       watcher,
		adds:          make(chan addRequest),
		removes:       make(chan removeRequest),
		fires:         make(chan fireRequest, 64),
		webhookRoutes: map[string]webhookRoute{},
		schedules:     map[uuid.UUID][]scheduleEntry{},
		watches:       map[uuid.UUID][]fileWatch{},
	}, nil
}

// Start launches the cron scheduler and the owning goroutine. Cancelling
// ctx stops the owning goroutine only; Stop also halts the cron scheduler
// and closes the file watcher.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.cronSched.Start()
	go d.run(ctx)
}

// Stop halts the cron scheduler, closes the file watcher and waits for the
// owning goroutine to exit.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	<-d.cronSched.Stop().Done()
	_ = d.watcher.Close()
	if d.done != nil {
		<-d.done
	}
}

// AddWorkflow registers every trigger-capable entry node of wf (schedule,
// webhook, fileEvent) with the dispatcher. Safe to call again after a
// RemoveWorkflow, or to update registrations by removing then re-adding.
func (d *Dispatcher) AddWorkflow(ctx context.Context, wf *domain.Workflow) error {
	done := make(chan error, 1)
	select {
	case d.adds <- addRequest{workflow: wf, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveWorkflow unregisters every cron entry, file watch and webhook route
// owned by workflowID.
func (d *Dispatcher) RemoveWorkflow(ctx context.Context, workflowID uuid.UUID) error {
	done := make(chan error, 1)
	select {
	case d.removes <- removeRequest{workflowID: workflowID, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the single goroutine that owns schedules/watches/webhookRoutes.
// Every mutation (add, remove, or a fsnotify event matching a registered
// watch) flows through this loop, one at a time.
func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return

		case req := <-d.adds:
			req.done <- d.handleAdd(req.workflow)

		case req := <-d.removes:
			req.done <- d.handleRemove(req.workflowID)

		case fr := <-d.fires:
			go d.fire(fr)

		case ev, ok := <-d.watcher.Events:
			if !ok {
				continue
			}
			d.handleFileEvent(ev)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				continue
			}
			d.bus.Emit(logging.NewError("", "", "file watcher error", err))
		}
	}
}

func (d *Dispatcher) handleAdd(wf *domain.Workflow) error {
	for _, node := range wf.EntryNodes() {
		switch node.Type() {
		case typeSchedule:
			expr, _ := node.Parameters()["cronExpr"].(string)
			if expr == "" {
				return fmt.Errorf("node %s: scheduleTrigger missing cronExpr", node.ID())
			}
			workflowID, nodeID := wf.ID(), node.ID()
			entryID, err := d.cronSched.AddFunc(expr, func() {
				d.fires <- fireRequest{workflowID: workflowID, triggerKind: domain.TriggerSchedule, input: map[string]any{"nodeId": nodeID.String()}}
			})
			if err != nil {
				return fmt.Errorf("node %s: invalid cron expression %q: %w", node.ID(), expr, err)
			}
			d.schedules[wf.ID()] = append(d.schedules[wf.ID()], scheduleEntry{nodeID: node.ID(), cronID: entryID})

		case typeWebhook:
			path, _ := node.Parameters()["path"].(string)
			method, _ := node.Parameters()["method"].(string)
			if path == "" {
				return fmt.Errorf("node %s: webhookTrigger missing path", node.ID())
			}
			d.routeMu.Lock()
			d.webhookRoutes[routeKey(method, path)] = webhookRoute{workflowID: wf.ID(), nodeID: node.ID()}
			d.routeMu.Unlock()

		case typeFileEvent:
			path, _ := node.Parameters()["path"].(string)
			if path == "" {
				return fmt.Errorf("node %s: fileEventTrigger missing path", node.ID())
			}
			if err := d.watcher.Add(path); err != nil {
				return fmt.Errorf("node %s: watch %q: %w", node.ID(), path, err)
			}
			d.watches[wf.ID()] = append(d.watches[wf.ID()], fileWatch{nodeID: node.ID(), path: path})
		}
	}
	return nil
}

func (d *Dispatcher) handleRemove(workflowID uuid.UUID) error {
	for _, entry := range d.schedules[workflowID] {
		d.cronSched.Remove(entry.cronID)
	}
	delete(d.schedules, workflowID)

	for _, w := range d.watches[workflowID] {
		if !d.pathStillWatched(workflowID, w.path) {
			_ = d.watcher.Remove(w.path)
		}
	}
	delete(d.watches, workflowID)

	d.routeMu.Lock()
	for key, route := range d.webhookRoutes {
		if route.workflowID == workflowID {
			delete(d.webhookRoutes, key)
		}
	}
	d.routeMu.Unlock()

	return nil
}

// pathStillWatched reports whether some workflow other than excluding
// still has a registered watch on path, so a shared directory isn't
// unwatched out from under a sibling workflow.
func (d *Dispatcher) pathStillWatched(excluding uuid.UUID, path string) bool {
	for wfID, watches := range d.watches {
		if wfID == excluding {
			continue
		}
		for _, w := range watches {
			if w.path == path {
				return true
			}
		}
	}
	return false
}

func (d *Dispatcher) handleFileEvent(ev fsnotify.Event) {
	for workflowID, watches := range d.watches {
		for _, w := range watches {
			if w.path != ev.Name && w.path != dirOf(ev.Name) {
				continue
			}
			d.fires <- fireRequest{
				workflowID:  workflowID,
				triggerKind: domain.TriggerFileEvent,
				input:       map[string]any{
					"nodeId": w.nodeID.String(),
					"path": ev.Name,
					"op": ev.Op.String(),
				},
			}
		}
	}
}

// fire loads the workflow fresh from the store (it may have changed since
// registration) and submits it. Runs off the owning goroutine so a slow
// workflow never stalls dispatch of the next stimulus.
func (d *Dispatcher) fire(req fireRequest) {
	ctx := context.Background()
	workflow, err := d.loadWorkflow(ctx, req.workflowID)
	if err != nil {
		d.bus.Emit(logging.NewError("", "", "load workflow "+req.workflowID.String()+" for trigger fire", err))
		return
	}
	if _, err := d.submitter.Submit(ctx, workflow, req.triggerKind, req.input, false); err != nil {
		d.bus.Emit(logging.NewError("", "", "submit triggered execution for workflow "+req.workflowID.String(), err))
	}
}

func (d *Dispatcher) loadWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	if d.workflows == nil {
		return nil, fmt.Errorf("trigger dispatcher has no workflow store configured")
	}
	return d.workflows.GetWorkflow(ctx, id)
}

func routeKey(method, path string) string {
	if method == "" {
		method = "*"
	}
	return method + " " + path
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return path
}
