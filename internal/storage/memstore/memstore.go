// Package memstore is an in-process, non-durable implementation of the
// domain store capabilities, each entity kind held in its own map (variables
// in a slice) under one shared RWMutex. Intended for local development and tests
// (config.StorageDriver == "memory", the default); internal/storage/sqlstore
// is the durable counterpart.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
)

type credentialRecord struct {
	credential *domain.Credential
	secret     []byte
}

// Store holds every entity kind the engine and the admin API need, each in
// its own collection rather than a single generic table, all guarded by mu.
type Store struct {
	mu sync.RWMutex

	workflows   map[uuid.UUID]*domain.Workflow
	executions  map[uuid.UUID]*domain.Execution
	credentials map[uuid.UUID]credentialRecord
	variables   []*domain.Variable
	settings    map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		workflows:   map[uuid.UUID]*domain.Workflow{},
		executions:  map[uuid.UUID]*domain.Execution{},
		credentials: map[uuid.UUID]credentialRecord{},
		settings:    map[string]string{},
	}
}

// SaveWorkflow inserts or overwrites a Workflow by id.
func (s *Store) SaveWorkflow(_ context.Context, w *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID()] = w
	return nil
}

// GetWorkflow satisfies domain.WorkflowStore.
func (s *Store) GetWorkflow(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "workflow "+id.String()+" not found", nil)
	}
	return w, nil
}

// ListWorkflows returns every stored Workflow, for the admin API's listing
// endpoint.
func (s *Store) ListWorkflows(_ context.Context) ([]*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w)
	}
	return out, nil
}

// DeleteWorkflow removes a Workflow; a no-op if it doesn't exist.
func (s *Store) DeleteWorkflow(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, id)
	return nil
}

// SaveExecution satisfies domain.ExecutionStore; called by the engine's
// coordinator goroutine only.
func (s *Store) SaveExecution(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID()] = exec
	return nil
}

// GetExecution satisfies domain.ExecutionStore.
func (s *Store) GetExecution(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "execution "+id.String()+" not found", nil)
	}
	return e, nil
}

// ListExecutions returns executions, optionally filtered to one workflow,
// for the admin API's history view.
func (s *Store) ListExecutions(_ context.Context, workflowID *uuid.UUID) ([]*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Execution, 0, len(s.executions))
	for _, e := range s.executions {
		if workflowID != nil && e.WorkflowID() != *workflowID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SaveCredential stores a Credential alongside its secret bytes. Secrets are
// kept as supplied: the memory store does not encrypt, since it never
// persists beyond process lifetime; sqlstore is where at-rest encryption
// (internal/crypto) applies.
func (s *Store) SaveCredential(_ context.Context, cred *domain.Credential, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.ID()] = credentialRecord{credential: cred, secret: secret}
	return nil
}

// GetCredential satisfies domain.CredentialStore.
func (s *Store) GetCredential(_ context.Context, id uuid.UUID) (*domain.Credential, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.credentials[id]
	if !ok {
		return nil, nil, domain.NewDomainError(domain.ErrCodeNotFound, "credential "+id.String()+" not found", nil)
	}
	return rec.credential, rec.secret, nil
}

// ListCredentials returns every stored Credential (never the secret bytes),
// for the admin API's credential listing.
func (s *Store) ListCredentials(_ context.Context) ([]*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Credential, 0, len(s.credentials))
	for _, rec := range s.credentials {
		out = append(out, rec.credential)
	}
	return out, nil
}

// SaveVariable appends or replaces a Variable, matching on (name, scope,
// workflowID).
func (s *Store) SaveVariable(_ context.Context, v *domain.Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.variables {
		if sameVariable(existing, v) {
			s.variables[i] = v
			return nil
		}
	}
	s.variables = append(s.variables, v)
	return nil
}

// ListVariables satisfies domain.VariableStore.
func (s *Store) ListVariables(_ context.Context, scope domain.VariableScope, workflowID *uuid.UUID) ([]*domain.Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var   out []*domain.Variable
	for _, v := range s.variables {
		if v.Scope != scope {
			continue
		}
		if scope == domain.ScopeGlobal {
			out = append(out, v)
			continue
		}
		if workflowID != nil && v.WorkflowID != nil && *v.WorkflowID == *workflowID {
			out = append(out, v)
		}
	}
	return out, nil
}

func sameVariable(a, b *domain.Variable) bool {
	if a.Name != b.Name || a.Scope != b.Scope {
		return false
	}
	if a.WorkflowID == nil || b.WorkflowID == nil {
		return a.WorkflowID == b.WorkflowID
	}
	return *a.WorkflowID == *b.WorkflowID
}

// SetSetting writes a key/value pair backing Workflow settings and
// engine-wide defaults.
func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// GetSetting satisfies domain.SettingsStore.
func (s *Store) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok, nil
}
