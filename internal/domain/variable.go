package domain

import "github.com/google/uuid"

// Variable is a named value read into an ExecutionContext at run start
// (global/workflow scope) or created during a run (execution scope).
// Name is unique within (scope, workflowID); SECRET-typed values are
// encrypted at rest by the owning VariableStore.
type Variable struct {
	Name       string
	Value      any
	Type       VariableType
	Scope      VariableScope
	WorkflowID *uuid.UUID
}

func NewVariable(name string, value any, varType VariableType, scope VariableScope, workflowID *uuid.UUID) (*Variable, error) {
	if name == "" {
		return nil, NewDomainError(ErrCodeInvalidInput, "variable name must not be blank", nil)
	}
	if scope != ScopeGlobal && workflowID == nil {
		return nil, NewDomainError(ErrCodeInvalidInput, "workflow-scoped or execution-scoped variable requires a workflow id", nil)
	}
	return &Variable{Name: name, Value: value, Type: varType, Scope: scope, WorkflowID: workflowID}, nil
}

// VariableSet is an unordered, name-keyed bag of Variables forming one level
// of the engine's layered variable scope (global < workflow < execution).
// Read-mostly: SetReadOnly(true) seals global/workflow levels so only
// execution-scope mutation is allowed during a run.
type VariableSet struct {
	values   map[string]any
	readOnly bool
}

func NewVariableSet() *VariableSet {
	return &VariableSet{values: map[string]any{}}
}

func (vs *VariableSet) SetReadOnly(ro bool) { vs.readOnly = ro }

func (vs *VariableSet) Set(name string, value any) error {
	if vs.readOnly {
		return NewDomainError(ErrCodeInvalidState, "variable set is read-only", nil)
	}
	vs.values[name] = value
	return nil
}

// SetUnchecked writes regardless of read-only state; used when seeding a
// VariableSet from stored variables before sealing it.
func (vs *VariableSet) SetUnchecked(name string, value any) {
	vs.values[name] = value
}

func (vs *VariableSet) Get(name string) (any, bool) {
	v, ok := vs.values[name]
	return v, ok
}

// All returns a shallow copy of the backing map.
func (vs *VariableSet) All() map[string]any {
	out := make(map[string]any, len(vs.values))
	for k, v := range vs.values {
		out[k] = v
	}
	return out
}
