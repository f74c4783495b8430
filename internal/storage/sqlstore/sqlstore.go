// Package sqlstore is the durable, Postgres-backed implementation of the
// domain store capabilities: one *Model struct plus a ToDomain()/NewXModel()
// pair per entity, bun.DB over pgdialect and pgdriver, InitSchema via
// CreateTable().IfNotExists(). Adds credentials/variables/settings/
// schema_migrations tables alongside the workflow/execution/node-execution
// ones.
package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tolgayilmaz86/nervemind/internal/crypto"
	"github.com/tolgayilmaz86/nervemind/internal/domain"
	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/wfjson"
)

// Store is a bun.DB-backed implementation of every domain store interface.
type Store struct {
	db  *bun.DB
	enc *crypto.Encryptor
}

// New opens a Postgres connection pool via pgdriver.
func New(dsn string, enc *crypto.Encryptor) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &Store{db: db, enc: enc}
}

// Ping checks connectivity, used by cmd/server when opening the store.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// InitSchema creates every table this store needs if absent, plus a
// schema_migrations marker row recording the version applied.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{
		(*workflowModel)(nil),
		(*executionModel)(nil),
		(*nodeExecutionModel)(nil),
		(*credentialModel)(nil),
		(*variableModel)(nil),
		(*settingModel)(nil),
		(*schemaMigrationModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	_, err := s.db.NewInsert().Model(&schemaMigrationModel{Version: 1, AppliedAt: time.Now()}).
		On("CONFLICT (version) DO NOTHING").Exec(ctx)
	return err
}

type schemaMigrationModel struct {
	bun.BaseModel `bun:"table:schema_migrations,alias:sm"`

	Version   int       `bun:"version,pk"`
	AppliedAt time.Time `bun:"applied_at"`
}

// Workflow

type workflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID        uuid.UUID `bun:"id,pk"`
	Name      string    `bun:"name"`
	Document  []byte    `bun:"document,type:jsonb"`
	CreatedAt time.Time `bun:"created_at"`
}

func newWorkflowModel(w *domain.Workflow, positions wfjson.Positions) (*workflowModel, error) {
	doc, err := wfjson.Encode(w, positions)
	if err != nil {
		return nil, err
	}
	return &workflowModel{ID: w.ID(), Name: w.Name(), Document: doc, CreatedAt: time.Now()}, nil
}

func (m *workflowModel) toDomain() (*domain.Workflow, error) {
	wf, _, err := wfjson.Decode(m.Document)
	if err != nil {
		return nil, &domainerrors.DataParsingError{Location: "workflows." + m.ID.String(), Message: err.Error(), Cause: err}
	}
	return wf, nil
}

// SaveWorkflow upserts a Workflow's wfjson document. Positions default to
// empty; callers that manage canvas layout should use SaveWorkflowWithLayout.
func (s *Store) SaveWorkflow(ctx context.Context, w *domain.Workflow) error {
	return s.SaveWorkflowWithLayout(ctx, w, nil)
}

// SaveWorkflowWithLayout upserts a Workflow together with its node
// positions, round-tripped through wfjson the same way import/export does.
func (s *Store) SaveWorkflowWithLayout(ctx context.Context, w *domain.Workflow, positions wfjson.Positions) error {
	model, err := newWorkflowModel(w, positions)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

// GetWorkflow satisfies domain.WorkflowStore.
func (s *Store) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	model := new(workflowModel)
	if err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "workflow "+id.String()+" not found", err)
	}
	return model.toDomain()
}

// ListWorkflows returns every stored Workflow, for the admin API.
func (s *Store) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	var models []workflowModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Workflow, 0, len(models))
	for _, m := range models {
		wf, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// DeleteWorkflow removes a Workflow row.
func (s *Store) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewDelete().Model((*workflowModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// Execution

type executionModel struct {
	bun.BaseModel `bun:"table:executions,alias:e"`

	ID           uuid.UUID  `bun:"id,pk"`
	WorkflowID   uuid.UUID  `bun:"workflow_id"`
	TriggerKind  string     `bun:"trigger_kind"`
	Status       string     `bun:"status"`
	StartedAt    time.Time  `bun:"started_at"`
	FinishedAt   *time.Time `bun:"finished_at"`
	InputData    []byte     `bun:"input_data,type:jsonb"`
	OutputData   []byte     `bun:"output_data,type:jsonb"`
	ErrorMessage string     `bun:"error_message"`
}

type nodeExecutionModel struct {
	bun.BaseModel `bun:"table:node_executions,alias:ne"`

	ID           int64      `bun:"id,pk,autoincrement"`
	ExecutionID  uuid.UUID  `bun:"execution_id"`
	NodeID       uuid.UUID  `bun:"node_id"`
	NodeName     string     `bun:"node_name"`
	NodeType     string     `bun:"node_type"`
	Status       string     `bun:"status"`
	StartedAt    time.Time  `bun:"started_at"`
	FinishedAt   *time.Time `bun:"finished_at"`
	InputData    []byte     `bun:"input_data,type:jsonb"`
	OutputData   []byte     `bun:"output_data,type:jsonb"`
	ErrorMessage string     `bun:"error_message"`
	AttemptCount int        `bun:"attempt_count"`
}

func newExecutionModel(exec *domain.Execution) (*executionModel, error) {
	input, err := marshalJSON(exec.InputData())
	if err != nil {
		return nil, err
	}
	output, err := marshalJSON(exec.OutputData())
	if err != nil {
		return nil, err
	}
	var finishedAt *time.Time
	if !exec.FinishedAt().IsZero() {
		t := exec.FinishedAt()
		finishedAt = &t
	}
	return &executionModel{
		ID:        exec.ID(), WorkflowID: exec.WorkflowID(), TriggerKind: string(exec.TriggerKind()),
		Status:    string(exec.Status()), StartedAt: exec.StartedAt(), FinishedAt: finishedAt,
		InputData: input, OutputData: output, ErrorMessage: exec.ErrorMessage(),
	}, nil
}

func newNodeExecutionModels(executionID uuid.UUID, nodeExecutions []*domain.NodeExecution) ([]*nodeExecutionModel, error) {
	out := make([]*nodeExecutionModel, 0, len(nodeExecutions))
	for _, ne := range nodeExecutions {
		input, err := marshalJSON(ne.InputData)
		if err != nil {
			return nil, err
		}
		output, err := marshalJSON(ne.OutputData)
		if err != nil {
			return nil, err
		}
		var finishedAt *time.Time
		if !ne.FinishedAt.IsZero() {
			t := ne.FinishedAt
			finishedAt = &t
		}
		out = append(out, &nodeExecutionModel{
			ExecutionID: executionID, NodeID: ne.NodeID, NodeName: ne.NodeName, NodeType: ne.NodeType,
			Status:      string(ne.Status), StartedAt: ne.StartedAt, FinishedAt: finishedAt,
			InputData:   input, OutputData: output, ErrorMessage: ne.ErrorMessage, AttemptCount: ne.AttemptCount,
		})
	}
	return out, nil
}

func (m *nodeExecutionModel) toDomain() (*domain.NodeExecution, error) {
	input, err := unmarshalJSON(m.InputData)
	if err != nil {
		return nil, err
	}
	output, err := unmarshalJSON(m.OutputData)
	if err != nil {
		return nil, err
	}
	var finishedAt time.Time
	if m.FinishedAt != nil {
		finishedAt = *m.FinishedAt
	}
	return &domain.NodeExecution{
		NodeID:    m.NodeID, NodeName: m.NodeName, NodeType: m.NodeType,
		Status:    domain.NodeExecutionStatus(m.Status), StartedAt: m.StartedAt, FinishedAt: finishedAt,
		InputData: input, OutputData: output, ErrorMessage: m.ErrorMessage, AttemptCount: m.AttemptCount,
	}, nil
}

// SaveExecution upserts an Execution and replaces its NodeExecution rows
// with a delete-then-reinsert of the child rows, inside one transaction.
// (SaveWorkflow has no child rows: it stores the whole workflow as one
// wfjson document.)
func (s *Store) SaveExecution(ctx context.Context, exec *domain.Execution) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		model, err := newExecutionModel(exec)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*nodeExecutionModel)(nil)).Where("execution_id = ?", exec.ID()).Exec(ctx); err != nil {
			return err
		}
		neModels, err := newNodeExecutionModels(exec.ID(), exec.NodeExecutions())
		if err != nil {
			return err
		}
		if len(neModels) > 0 {
			if _, err := tx.NewInsert().Model(&neModels).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetExecution satisfies domain.ExecutionStore, reconstructing the
// Execution aggregate via domain.ReconstructExecution.
func (s *Store) GetExecution(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	model := new(executionModel)
	if err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "execution "+id.String()+" not found", err)
	}
	var neModels []nodeExecutionModel
	if err := s.db.NewSelect().Model(&neModels).Where("execution_id = ?", id).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	nodeExecutions := make([]*domain.NodeExecution, 0, len(neModels))
	for _, nm := range neModels {
		ne, err := nm.toDomain()
		if err != nil {
			return nil, err
		}
		nodeExecutions = append(nodeExecutions, ne)
	}
	input, err := unmarshalJSON(model.InputData)
	if err != nil {
		return nil, err
	}
	output, err := unmarshalJSON(model.OutputData)
	if err != nil {
		return nil, err
	}
	var finishedAt time.Time
	if model.FinishedAt != nil {
		finishedAt = *model.FinishedAt
	}
	return domain.ReconstructExecution(
		model.ID, model.WorkflowID, domain.TriggerKind(model.TriggerKind),
		domain.ExecutionStatus(model.Status), model.StartedAt, finishedAt,
		input, output, model.ErrorMessage, nodeExecutions,
	), nil
}

// ListExecutions returns executions, optionally filtered to one workflow.
func (s *Store) ListExecutions(ctx context.Context, workflowID *uuid.UUID) ([]*domain.Execution, error) {
	var models []executionModel
	query := s.db.NewSelect().Model(&models).Order("started_at DESC")
	if workflowID != nil {
		query = query.Where("workflow_id = ?", *workflowID)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Execution, 0, len(models))
	for _, m := range models {
		exec, err := s.GetExecution(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

// Credential

type credentialModel struct {
	bun.BaseModel `bun:"table:credentials,alias:c"`

	ID        uuid.UUID `bun:"id,pk"`
	Type      string    `bun:"type"`
	Name      string    `bun:"name"`
	Encrypted []byte    `bun:"encrypted_secret"`
	CreatedAt time.Time `bun:"created_at"`
}

// SaveCredential encrypts secret at rest with internal/crypto before
// writing.
func (s *Store) SaveCredential(ctx context.Context, cred *domain.Credential, secret []byte) error {
	sealed, err := s.enc.Seal(secret)
	if err != nil {
		return &domainerrors.EncryptionError{ResourceKind: "credential", ResourceID: cred.ID().String(), Cause: err}
	}
	model := &credentialModel{
		ID: cred.ID(), Type: string(cred.Type()), Name: cred.Name(), Encrypted: sealed, CreatedAt: time.Now(),
	}
	_, err = s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

// GetCredential satisfies domain.CredentialStore, decrypting the secret on
// read.
func (s *Store) GetCredential(ctx context.Context, id uuid.UUID) (*domain.Credential, []byte, error) {
	model := new(credentialModel)
	if err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, nil, domain.NewDomainError(domain.ErrCodeNotFound, "credential "+id.String()+" not found", err)
	}
	secret, err := s.enc.Open(model.Encrypted)
	if err != nil {
		return nil, nil, &domainerrors.EncryptionError{ResourceKind: "credential", ResourceID: id.String(), Cause: err}
	}
	cred, err := domain.NewCredential(model.ID, domain.CredentialType(model.Type), model.Name, model.Encrypted)
	if err != nil {
		return nil, nil, err
	}
	return cred, secret, nil
}

// ListCredentials returns every stored Credential (never the secret bytes).
func (s *Store) ListCredentials(ctx context.Context) ([]*domain.Credential, error) {
	var models []credentialModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Credential, 0, len(models))
	for _, m := range models {
		cred, err := domain.NewCredential(m.ID, domain.CredentialType(m.Type), m.Name, m.Encrypted)
		if err != nil {
			return nil, err
		}
		out = append(out, cred)
	}
	return out, nil
}

// Variable

type variableModel struct {
	bun.BaseModel `bun:"table:variables,alias:v"`

	ID         int64      `bun:"id,pk,autoincrement"`
	Name       string     `bun:"name,unique:variable_identity"`
	ValueJSON  []byte     `bun:"value,type:jsonb"`
	Encrypted  []byte     `bun:"encrypted_value"`
	Type       string     `bun:"type"`
	Scope      string     `bun:"scope,unique:variable_identity"`
	WorkflowID *uuid.UUID `bun:"workflow_id,unique:variable_identity"`
}

// SaveVariable upserts a Variable, matched on (name, scope, workflow_id).
// SECRET-typed values are sealed with internal/crypto before being
// written, the way Credential secrets are.
func (s *Store) SaveVariable(ctx context.Context, v *domain.Variable) error {
	model := &variableModel{Name: v.Name, Type: string(v.Type), Scope: string(v.Scope), WorkflowID: v.WorkflowID}
	if v.Type == domain.VarSecret {
		plain, err := marshalJSON(v.Value)
		if err != nil {
			return err
		}
		sealed, err := s.enc.Seal(plain)
		if err != nil {
			return &domainerrors.EncryptionError{ResourceKind: "variable", ResourceID: v.Name, Cause: err}
		}
		model.Encrypted = sealed
	} else {
		raw, err := marshalJSON(v.Value)
		if err != nil {
			return err
		}
		model.ValueJSON = raw
	}

	_, err := s.db.NewInsert().Model(model).
		On("CONFLICT (name, scope, workflow_id) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("encrypted_value = EXCLUDED.encrypted_value").
		Set("type = EXCLUDED.type").
		Exec(ctx)
	return err
}

// ListVariables satisfies domain.VariableStore, decrypting SECRET values.
func (s *Store) ListVariables(ctx context.Context, scope domain.VariableScope, workflowID *uuid.UUID) ([]*domain.Variable, error) {
	var models []variableModel
	query := s.db.NewSelect().Model(&models).Where("scope = ?", string(scope))
	if workflowID != nil {
		query = query.Where("workflow_id = ?", *workflowID)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Variable, 0, len(models))
	for _, m := range models {
		var value any
		varType := domain.VariableType(m.Type)
		if varType == domain.VarSecret {
			plain, err := s.enc.Open(m.Encrypted)
			if err != nil {
				return nil, &domainerrors.EncryptionError{ResourceKind: "variable", ResourceID: m.Name, Cause: err}
			}
			if err := unmarshalJSONInto(plain, &value); err != nil {
				return nil, err
			}
		} else if err := unmarshalJSONInto(m.ValueJSON, &value); err != nil {
			return nil, err
		}
		v, err := domain.NewVariable(m.Name, value, varType, domain.VariableScope(m.Scope), m.WorkflowID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Settings

type settingModel struct {
	bun.BaseModel `bun:"table:settings,alias:s"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value"`
}

// SetSetting upserts a key/value pair.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.NewInsert().Model(&settingModel{Key: key, Value: value}).
		On("CONFLICT (key) DO UPDATE").Set("value = EXCLUDED.value").Exec(ctx)
	return err
}

// GetSetting satisfies domain.SettingsStore.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	model := new(settingModel)
	err := s.db.NewSelect().Model(model).Where("key = ?", key).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return model.Value, true, nil
}
