package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
	"github.com/tolgayilmaz86/nervemind/internal/exec"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
	"github.com/tolgayilmaz86/nervemind/internal/wfjson"
)

// Store is the union of persistence capabilities the admin surface reads
// and writes, beyond the narrower per-concern interfaces
// internal/domain/store.go declares for the engine itself. Both
// internal/storage/memstore.Store and internal/storage/sqlstore.Store
// satisfy it already.
type Store interface {
	SaveWorkflow(ctx context.Context, w *domain.Workflow) error
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error

	GetExecution(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	ListExecutions(ctx context.Context, workflowID *uuid.UUID) ([]*domain.Execution, error)

	SaveCredential(ctx context.Context, cred *domain.Credential, secret []byte) error
	ListCredentials(ctx context.Context) ([]*domain.Credential, error)

	SaveVariable(ctx context.Context, v *domain.Variable) error
	ListVariables(ctx context.Context, scope domain.VariableScope, workflowID *uuid.UUID) ([]*domain.Variable, error)
}

// TriggerRegistrar lets the admin surface keep the trigger dispatcher's
// schedule/webhook/fileEvent registrations in sync with workflow CRUD
// (*trigger.Dispatcher satisfies this). Optional: a nil Registrar simply
// skips registration, which is fine for a store used only with manually
// submitted workflows.
type TriggerRegistrar interface {
	AddWorkflow(ctx context.Context, wf *domain.Workflow) error
	RemoveWorkflow(ctx context.Context, workflowID uuid.UUID) error
}

// Server is the "local HTTP endpoint for administration"
// (/api/admin/**): workflow CRUD, manual execution submission, execution
// history, the node-type palette, and per-execution metrics. Out of the
// engine's own specified scope but cmd/server needs a concrete surface to wire
// the engine behind, so this is the minimal one commits
// to, go: JSON in/out, uuid.Parse path params,
// typed error->status mapping).
type Server struct {
	store    Store
	engine   *exec.Engine
	registry *registry.Registry
	trigger  TriggerRegistrar
	auth     Authenticator
	mux      *http.ServeMux
}

// NewServer wires a Server's routes. auth may be nil (NoAuth is used then);
// trigger may be nil (workflow CRUD simply skips dispatcher registration).
func NewServer(store Store, engine *exec.Engine, reg *registry.Registry, trig TriggerRegistrar, auth Authenticator) *Server {
	if auth == nil {
		auth = NoAuth{}
	}
	s := &Server{store: store, engine: engine, registry: reg, trigger: trig, auth: auth, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)

	s.mux.HandleFunc("GET /api/admin/nodetypes", requireAuth(s.auth, s.handleListNodeTypes))

	s.mux.HandleFunc("GET /api/admin/workflows", requireAuth(s.auth, s.handleListWorkflows))
	s.mux.HandleFunc("POST /api/admin/workflows", requireAuth(s.auth, s.handleCreateWorkflow))
	s.mux.HandleFunc("GET /api/admin/workflows/{id}", requireAuth(s.auth, s.handleGetWorkflow))
	s.mux.HandleFunc("DELETE /api/admin/workflows/{id}", requireAuth(s.auth, s.handleDeleteWorkflow))

	s.mux.HandleFunc("POST /api/admin/workflows/{id}/execute", requireAuth(s.auth, s.handleExecuteWorkflow))
	s.mux.HandleFunc("GET /api/admin/executions", requireAuth(s.auth, s.handleListExecutions))
	s.mux.HandleFunc("GET /api/admin/executions/{id}", requireAuth(s.auth, s.handleGetExecution))
	s.mux.HandleFunc("GET /api/admin/executions/{id}/metrics", requireAuth(s.auth, s.handleMetrics))
	s.mux.HandleFunc("POST /api/admin/executions/{id}/continue", requireAuth(s.auth, s.handleContinueStep))
	s.mux.HandleFunc("POST /api/admin/executions/{id}/cancel", requireAuth(s.auth, s.handleCancelStep))

	s.mux.HandleFunc("GET /api/admin/credentials", requireAuth(s.auth, s.handleListCredentials))
	s.mux.HandleFunc("POST /api/admin/credentials", requireAuth(s.auth, s.handleCreateCredential))

	s.mux.HandleFunc("GET /api/admin/variables", requireAuth(s.auth, s.handleListVariables))
	s.mux.HandleFunc("POST /api/admin/variables", requireAuth(s.auth, s.handleCreateVariable))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleListNodeTypes exposes the registry's Handle list for an editor palette to render.
func (s *Server) handleListNodeTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot().All())
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	docs := make([]json.RawMessage, 0, len(workflows))
	for _, wf := range workflows {
		doc, err := wfjson.Encode(wf, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		docs = append(docs, doc)
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleCreateWorkflow decodes a Workflow JSON body, persists it,
// and (if a TriggerRegistrar is configured) registers its schedule/webhook/
// fileEvent entry nodes with the trigger dispatcher.
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	wf, _, err := wfjson.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := wf.ValidateStructure(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveWorkflow(r.Context(), wf); err != nil {
		writeError(w, err)
		return
	}
	if s.trigger != nil {
		if err := s.trigger.AddWorkflow(r.Context(), wf); err != nil {
			writeError(w, err)
			return
		}
	}
	doc, err := wfjson.Encode(wf, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, json.RawMessage(doc))
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := wfjson.Encode(wf, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(doc))
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if s.trigger != nil {
		if err := s.trigger.RemoveWorkflow(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := s.store.DeleteWorkflow(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExecuteWorkflow is the manual-trigger entry point: 's
// "manual invocation" stimulus, submitted synchronously through the
// engine.
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Input    map[string]any `json:"input"`
		StepMode bool           `json:"stepMode"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "decode request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	execution, err := s.engine.Submit(r.Context(), wf, domain.TriggerManual, req.Input, req.StepMode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, executionView(execution))
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	var workflowIDPtr *uuid.UUID
	if q := r.URL.Query().Get("workflowId"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			http.Error(w, "invalid workflowId", http.StatusBadRequest)
			return
		}
		workflowIDPtr = &id
	}
	executions, err := s.store.ListExecutions(r.Context(), workflowIDPtr)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(executions))
	for _, e := range executions {
		out = append(out, executionView(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	execution, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executionView(execution))
}

// handleMetrics exposes per-execution metrics summary;
// 404s for an id this engine has no metrics for, i.e. one never submitted
// through it (the engine keeps every submitted run's metrics, see
// exec.Engine.GetMetrics).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	metrics, ok := s.engine.GetMetrics(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// handleContinueStep drives continueStep() over HTTP.
func (s *Server) handleContinueStep(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.ContinueStep(id) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCancelStep drives cancelStepExecution() over HTTP.
func (s *Server) handleCancelStep(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.CancelStep(id) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.ListCredentials(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(creds))
	for _, c := range creds {
		out = append(out, map[string]any{"id": c.ID(), "type": c.Type(), "name": c.Name()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateCredential accepts a plaintext secret and persists only its
// id/type/name plus caller-encrypted bytes; this handler itself does not
// encrypt (that is internal/storage/sqlstore's job on write), it merely
// forwards the secret bytes the caller already encrypted or accepts them
// in the clear for the memstore development path.
func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   string `json:"type"`
		Name   string `json:"name"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "decode request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	cred, err := domain.NewCredential(uuid.Nil, domain.CredentialType(req.Type), req.Name, []byte(req.Secret))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveCredential(r.Context(), cred, []byte(req.Secret)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": cred.ID(), "type": cred.Type(), "name": cred.Name()})
}

func (s *Server) handleListVariables(w http.ResponseWriter, r *http.Request) {
	scope := domain.VariableScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = domain.ScopeGlobal
	}
	var workflowIDPtr *uuid.UUID
	if q := r.URL.Query().Get("workflowId"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			http.Error(w, "invalid workflowId", http.StatusBadRequest)
			return
		}
		workflowIDPtr = &id
	}
	vars, err := s.store.ListVariables(r.Context(), scope, workflowIDPtr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vars)
}

func (s *Server) handleCreateVariable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string               `json:"name"`
		Value      any                  `json:"value"`
		Type       domain.VariableType  `json:"type"`
		Scope      domain.VariableScope `json:"scope"`
		WorkflowID string               `json:"workflowId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "decode request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	var workflowIDPtr *uuid.UUID
	if req.WorkflowID != "" {
		id, err := uuid.Parse(req.WorkflowID)
		if err != nil {
			http.Error(w, "invalid workflowId", http.StatusBadRequest)
			return
		}
		workflowIDPtr = &id
	}
	v, err := domain.NewVariable(req.Name, req.Value, req.Type, req.Scope, workflowIDPtr)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveVariable(r.Context(), v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func executionView(e *domain.Execution) map[string]any {
	view := map[string]any{
		"id": e.ID(),
		"workflowId": e.WorkflowID(),
		"triggerKind": e.TriggerKind(),
		"status": e.Status(),
		"startedAt": e.StartedAt(),
		"inputData": e.InputData(),
		"outputData": e.OutputData(),
		"error": e.ErrorMessage(),
	}
	if !e.FinishedAt().IsZero() {
		view["finishedAt"] = e.FinishedAt()
	}
	nodeExecs := make([]map[string]any, 0, len(e.NodeExecutions()))
	for _, ne := range e.NodeExecutions() {
		nodeExecs = append(nodeExecs, map[string]any{
			"nodeId": ne.NodeID,
			"nodeName": ne.NodeName,
			"nodeType": ne.NodeType,
			"status": ne.Status,
			"startedAt": ne.StartedAt,
			"finishedAt": ne.FinishedAt,
			"errorMessage": ne.ErrorMessage,
			"attemptCount": ne.AttemptCount,
		})
	}
	view["nodeExecutions"] = nodeExecs
	return view
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id: "+err.Error(), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps a domain.DomainError's Code to an HTTP status, falling
// back to 500 for anything else.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var de *domain.DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case domain.ErrCodeNotFound:
			status = http.StatusNotFound
		case domain.ErrCodeInvalidInput, domain.ErrCodeValidationFailed:
			status = http.StatusBadRequest
		case domain.ErrCodeAlreadyExists:
			status = http.StatusConflict
		case domain.ErrCodeInvalidState, domain.ErrCodeCyclicDependency:
			status = http.StatusUnprocessableEntity
		}
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
