// Package registry implements the NodeExecutor contract and
// Registry: a uniform service-provider lookup that composes built-in
// executors with externally discovered plugin executors. An RWMutex-guarded
// id-keyed map backs the lookup, with every executor sharing the same
// typed-config, (ctx, config, input, execCtx) Execute signature.
package registry

import (
	"context"

	"github.com/tolgayilmaz86/nervemind/internal/execctx"
)

// TriggerKind mirrors domain.TriggerKind without importing internal/domain,
// keeping this package importable by both the engine and plugin authors
// without a dependency cycle; the engine maps between the two at its
// boundary.
type TriggerKind string

// Handle is a NodeExecutor's identity: stable type
// id, display name, category, optional trigger kind, help text and a
// JSON-Schema for its configuration.
type Handle struct {
	TypeID       string
	DisplayName  string
	Category     string
	TriggerKind  TriggerKind    // empty unless this handle is a trigger
	Description  string
	Help         string
	ConfigSchema map[string]any // JSON-Schema, opaque to the engine
}

// IsTrigger reports whether this handle identifies a trigger-kind executor.
func (h Handle) IsTrigger() bool { return h.TriggerKind != "" }

// LifecycleEvent is broadcast to executors that declared interest via
// Subscriptions; used by trigger executors to learn
// about host shutdown.
type LifecycleEvent string

const (
	LifecycleShutdown LifecycleEvent = "shutdown"
)

// NodeExecutor is the capability contract every built-in and
// plugin-discovered node type implements.
type NodeExecutor interface {
	// Identity returns this executor's stable Handle.
	Identity() Handle

	// Validate checks a resolved configuration map, returning a
	// field->error-message map (empty = valid). Never mutates config.
	Validate(config map[string]any) map[string]string

	// Execute runs the node. input is the merged map of predecessor
	// outputs plus trigger input; execCtx is the per-run ExecutionContext
	// capability surface (variables, credentials, cancellation).
	Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error)
}

// LifecycleSubscriber is the optional operation 4 of : an executor
// may declare interest in engine lifecycle events.
type LifecycleSubscriber interface {
	OnLifecycleEvent(event LifecycleEvent)
}
