package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry composes built-in executors with externally discovered plugin
// executors under a uniform lookup, an RWMutex-guarded id-keyed map.
//
// "On registry update the engine must re-resolve node types lazily per
// run; already-running executions continue with the snapshot they
// captured": callers obtain a Snapshot() once per run and
// resolve node types against that, rather than against the live Registry,
// so a concurrent RegisterPlugin mid-run cannot change behavior underfoot.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]NodeExecutor
	providers []PluginProvider
}

func New() *Registry {
	return &Registry{executors: map[string]NodeExecutor{}}
}

// RegisterBuiltin adds a built-in executor, keyed by its Handle.TypeID.
func (r *Registry) RegisterBuiltin(exec NodeExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := exec.Identity().TypeID
	if id == "" {
		return fmt.Errorf("executor has blank type id")
	}
	if _, exists := r.executors[id]; exists {
		return fmt.Errorf("node type %q already registered", id)
	}
	r.executors[id] = exec
	return nil
}

// RegisterProvider discovers and registers every handle a PluginProvider
// declares.
func (r *Registry) RegisterProvider(p PluginProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range p.Dependencies() {
		if _, ok := r.executors[dep.PluginID]; !ok {
			return fmt.Errorf("plugin %s requires %s which is not registered", p.Identity().ID, dep.PluginID)
		}
	}
	for _, h := range p.Handles() {
		exec, err := p.NewExecutor(h)
		if err != nil {
			return fmt.Errorf("plugin %s: build executor for %s: %w", p.Identity().ID, h.TypeID, err)
		}
		if _, exists := r.executors[h.TypeID]; exists {
			return fmt.Errorf("node type %q already registered", h.TypeID)
		}
		r.executors[h.TypeID] = exec
	}
	r.providers = append(r.providers, p)
	return nil
}

// Snapshot is an immutable, point-in-time view of a Registry, captured once
// per run.
type Snapshot struct {
	executors map[string]NodeExecutor
}

// Snapshot captures the current executor set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]NodeExecutor, len(r.executors))
	for k, v := range r.executors {
		out[k] = v
	}
	return Snapshot{executors: out}
}

// Resolve looks up a node type within the snapshot.
func (s Snapshot) Resolve(typeID string) (NodeExecutor, bool) {
	e, ok := s.executors[typeID]
	return e, ok
}

// TriggerTypeIDs returns every node type id in the snapshot whose Handle
// identifies it as a trigger.
func (s Snapshot) TriggerTypeIDs() map[string]bool {
	out := map[string]bool{}
	for id, e := range s.executors {
		if e.Identity().IsTrigger() {
			out[id] = true
		}
	}
	return out
}

// All returns every registered Handle, sorted by TypeID for deterministic
// iteration (UI palette listing, diagnostics, tests).
func (s Snapshot) All() []Handle {
	out := make([]Handle, 0, len(s.executors))
	for _, e := range s.executors {
		out = append(out, e.Identity())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}

// Broadcast delivers a LifecycleEvent to every executor that implements
// LifecycleSubscriber.
func (r *Registry) Broadcast(event LifecycleEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.executors {
		if sub, ok := e.(LifecycleSubscriber); ok {
			sub.OnLifecycleEvent(event)
		}
	}
}
