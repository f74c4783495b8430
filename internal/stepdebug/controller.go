package stepdebug

import (
	"sync"

	"github.com/tolgayilmaz86/nervemind/internal/exec"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
)

// Controller is the external controller: it observes an
// Engine's logging.Bus for pause/node/execution events, maintains each
// execution's history ribbon, and pushes both over a Hub to subscribed
// step-debug UIs. It also exposes Continue/Cancel, which drive the Engine's
// per-execution step-debug suspension directly.
type Controller struct {
	engine  *exec.Engine
	hub     *Hub
	ribbons *ribbonStore

	mu        sync.Mutex
	nodeNames map[string]map[string][2]string // executionID -> nodeID -> [name, type]
}

// NewController wires a Controller to engine's bus and returns it; the
// caller still owns running hub.Run() in its own goroutine.
func NewController(engine *exec.Engine, bus *logging.Bus, hub *Hub) *Controller {
	c := &Controller{
		engine:    engine,
		hub:       hub,
		ribbons:   newRibbonStore(),
		nodeNames: map[string]map[string][2]string{},
	}
	bus.Subscribe(logging.ObserverFunc(c.observe))
	return c
}

func (c *Controller) observe(entry logging.LogEntry) {
	switch entry.Category {
	case logging.CategoryNodeStart:
		name, _ := entry.Context["nodeName"].(string)
		typ, _ := entry.Context["nodeType"].(string)
		c.rememberNode(entry.ExecutionID, entry.NodeID, name, typ)
		ev := newEvent(EventNodeStarted, entry.ExecutionID)
		ev.NodeID, ev.NodeName = entry.NodeID, name
		c.hub.Broadcast(entry.ExecutionID, ev)

	case logging.CategoryNodeEnd, logging.CategoryNodeSkip:
		status, _ := entry.Context["status"].(string)
		if status == "" && entry.Category == logging.CategoryNodeSkip {
			status = "SKIPPED"
		}
		name, typ := c.lookupNode(entry.ExecutionID, entry.NodeID)
		c.ribbons.append(entry.ExecutionID, Entry{
			NodeID: entry.NodeID, NodeName: name, NodeType: typ,
			Status: status, FinishedAt: entry.Timestamp,
		})
		ev := newEvent(EventNodeFinished, entry.ExecutionID)
		ev.NodeID, ev.NodeName, ev.Status = entry.NodeID, name, status
		c.hub.Broadcast(entry.ExecutionID, ev)

	case logging.CategoryPause:
		name, _ := entry.Context["nodeName"].(string)
		index, _ := entry.Context["nodeIndex"].(int)
		total, _ := entry.Context["totalNodes"].(int)
		ev := newEvent(EventPaused, entry.ExecutionID)
		ev.NodeID, ev.NodeName, ev.NodeIndex, ev.TotalNodes = entry.NodeID, name, index, total
		c.hub.Broadcast(entry.ExecutionID, ev)

	case logging.CategoryExecutionEnd:
		status, _ := entry.Context["status"].(string)
		ev := newEvent(EventExecutionEnd, entry.ExecutionID)
		ev.Status = status
		ev.Ribbon = c.ribbons.get(entry.ExecutionID)
		c.hub.Broadcast(entry.ExecutionID, ev)
		c.forgetExecution(entry.ExecutionID)
		c.ribbons.clear(entry.ExecutionID)
	}
}

func (c *Controller) rememberNode(executionID, nodeID, name, typ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodeNames[executionID] == nil {
		c.nodeNames[executionID] = map[string][2]string{}
	}
	c.nodeNames[executionID][nodeID] = [2]string{name, typ}
}

func (c *Controller) lookupNode(executionID, nodeID string) (name, typ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.nodeNames[executionID][nodeID]; ok {
		return info[0], info[1]
	}
	return "", ""
}

func (c *Controller) forgetExecution(executionID string) {
	c.mu.Lock()
	delete(c.nodeNames, executionID)
	c.mu.Unlock()
}

// Continue releases one step-debug suspension.
func (c *Controller) Continue(executionID string) bool { return c.engine.ContinueStep(executionID) }

// Cancel aborts a step-debug-suspended execution.
func (c *Controller) Cancel(executionID string) bool { return c.engine.CancelStep(executionID) }

// Ribbon returns the current history ribbon for executionID.
func (c *Controller) Ribbon(executionID string) []Entry { return c.ribbons.get(executionID) }
