package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
)

type stubExecutor struct {
	handle Handle
}

func (s stubExecutor) Identity() Handle { return s.handle }
func (s stubExecutor) Validate(map[string]any) map[string]string { return nil }
func (s stubExecutor) Execute(context.Context, map[string]any, map[string]any, *execctx.Context) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterBuiltin(stubExecutor{handle: Handle{TypeID: "set"}}))

	snap := r.Snapshot()
	exec, ok := snap.Resolve("set")
	require.True(t, ok)
	assert.Equal(t, "set", exec.Identity().TypeID)

	_, ok = snap.Resolve("missing")
	assert.False(t, ok)
}

func TestRegistry_DuplicateTypeIDRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterBuiltin(stubExecutor{handle: Handle{TypeID: "set"}}))
	err := r.RegisterBuiltin(stubExecutor{handle: Handle{TypeID: "set"}})
	assert.Error(t, err)
}

func TestRegistry_SnapshotIsolatedFromLaterRegistrations(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterBuiltin(stubExecutor{handle: Handle{TypeID: "set"}}))
	snap := r.Snapshot()

	require.NoError(t, r.RegisterBuiltin(stubExecutor{handle: Handle{TypeID: "filter"}}))

	_, ok := snap.Resolve("filter")
	assert.False(t, ok, "snapshot must not observe registrations made after it was captured")
}

func TestRegistry_TriggerTypeIDs(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterBuiltin(stubExecutor{handle: Handle{TypeID: "manualTrigger", TriggerKind: "manual"}}))
	require.NoError(t, r.RegisterBuiltin(stubExecutor{handle: Handle{TypeID: "set"}}))

	triggers := r.Snapshot().TriggerTypeIDs()
	assert.True(t, triggers["manualTrigger"])
	assert.False(t, triggers["set"])
}

type depProvider struct{ missing string }

func (d depProvider) Identity() ProviderIdentity { return ProviderIdentity{ID: "dep-plugin"} }
func (d depProvider) Handles() []Handle { return []Handle{{TypeID: "custom"}} }
func (d depProvider) NewExecutor(h Handle) (NodeExecutor, error) {
	return stubExecutor{handle: h}, nil
}
func (d depProvider) Dependencies() []Dependency {
	return []Dependency{{PluginID: d.missing}}
}

func TestRegistry_RejectsPluginWithUnmetDependency(t *testing.T) {
	r := New()
	err := r.RegisterProvider(depProvider{missing: "not-registered"})
	assert.Error(t, err)
}

func TestDiscoverProviders_UnknownFactory(t *testing.T) {
	_, err := DiscoverProviders([]string{"nonexistent.Provider"})
	assert.Error(t, err)
}
