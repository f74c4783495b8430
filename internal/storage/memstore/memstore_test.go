package memstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
)

func TestStore_WorkflowRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	wf, err := domain.NewWorkflow(uuid.Nil, "wf", nil, domain.TriggerManual)
	require.NoError(t, err)

	require.NoError(t, s.SaveWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, wf.ID())
	require.NoError(t, err)
	assert.Equal(t, wf.ID(), got.ID())

	all, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID()))
	_, err = s.GetWorkflow(ctx, wf.ID())
	assert.Error(t, err)
}

func TestStore_GetWorkflow_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetWorkflow(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestStore_CredentialRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	cred, err := domain.NewCredential(uuid.Nil, domain.CredentialAPIKey, "api", []byte("shh"))
	require.NoError(t, err)
	require.NoError(t, s.SaveCredential(ctx, cred, []byte("shh")))

	gotCred, secret, err := s.GetCredential(ctx, cred.ID())
	require.NoError(t, err)
	assert.Equal(t, "api", gotCred.Name())
	assert.Equal(t, []byte("shh"), secret)

	all, err := s.ListCredentials(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_VariableScoping(t *testing.T) {
	s := New()
	ctx := context.Background()
	wfID := uuid.New()
	otherWfID := uuid.New()

	global, err := domain.NewVariable("g", "v", domain.VarString, domain.ScopeGlobal, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveVariable(ctx, global))

	scoped, err := domain.NewVariable("s", "v", domain.VarString, domain.ScopeWorkflow, &wfID)
	require.NoError(t, err)
	require.NoError(t, s.SaveVariable(ctx, scoped))

	globals, err := s.ListVariables(ctx, domain.ScopeGlobal, nil)
	require.NoError(t, err)
	assert.Len(t, globals, 1)

	scopedForWf, err := s.ListVariables(ctx, domain.ScopeWorkflow, &wfID)
	require.NoError(t, err)
	assert.Len(t, scopedForWf, 1)

	scopedForOther, err := s.ListVariables(ctx, domain.ScopeWorkflow, &otherWfID)
	require.NoError(t, err)
	assert.Empty(t, scopedForOther)
}

func TestStore_Settings(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "timezone", "UTC"))
	v, ok, err := s.GetSetting(ctx, "timezone")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "UTC", v)
}
