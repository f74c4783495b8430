package domain

import (
	"context"

	"github.com/google/uuid"
)

// WorkflowStore is the persistence capability the engine consumes for
// workflow lookups; the engine never writes workflows.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error)
}

// ExecutionStore is appended to by the engine's coordinator goroutine only
//; readers may observe partial state and
// must tolerate a zero FinishedAt for running executions.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error)
}

// CredentialStore resolves a credential id to its decrypted secret bytes.
// Read-mostly, safe for concurrent reads.
type CredentialStore interface {
	GetCredential(ctx context.Context, id uuid.UUID) (*Credential, []byte, error)
}

// VariableStore reads global/workflow-scoped Variables at run start. It
// has no write method: execution-scope variables live only within one run.
type VariableStore interface {
	ListVariables(ctx context.Context, scope VariableScope, workflowID *uuid.UUID) ([]*Variable, error)
}

// SettingsStore is a small read-mostly key/value capability backing a
// Workflow's settings map and engine-wide defaults.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}
