package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolgayilmaz86/nervemind/internal/exec"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
	"github.com/tolgayilmaz86/nervemind/internal/registry/builtin"
	"github.com/tolgayilmaz86/nervemind/internal/storage/memstore"
)

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	reg := registry.New()
	for _, e := range builtin.All() {
		require.NoError(t, reg.RegisterBuiltin(e))
	}
	store := memstore.New()
	bus := logging.NewBus()
	engine := exec.New(reg, bus, exec.DefaultConfig(), store, store, store, store)
	return NewServer(store, engine, reg, nil, nil), store
}

const sampleWorkflow = `{
 "name": "hello",
 "nodes": [
 {"id":"11111111-1111-1111-1111-111111111111","type":"manualTrigger","name":"start","parameters":{}},
 {"id":"22222222-2222-2222-2222-222222222222","type":"set","name":"assign","parameters":{"values":{"greeting":"hi"}}}
 ],
 "connections": [
 {"id":"33333333-3333-3333-3333-333333333333","sourceNodeId":"11111111-1111-1111-1111-111111111111","targetNodeId":"22222222-2222-2222-2222-222222222222"}
 ],
 "settings": {}
}`

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CreateAndExecuteWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/admin/workflows", bytes.NewBufferString(sampleWorkflow))
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	id := created["id"].(string)

	execReq := httptest.NewRequest(http.MethodPost, "/api/admin/workflows/"+id+"/execute", bytes.NewBufferString(`{"input":{}}`))
	execReq.SetPathValue("id", id)
	execRec := httptest.NewRecorder()
	srv.ServeHTTP(execRec, execReq)
	require.Equal(t, http.StatusAccepted, execRec.Code)

	var execution map[string]any
	require.NoError(t, json.Unmarshal(execRec.Body.Bytes(), &execution))
	assert.Equal(t, "SUCCESS", execution["status"])
}

func TestServer_RequireAuthRejectsMissingToken(t *testing.T) {
	reg := registry.New()
	store := memstore.New()
	bus := logging.NewBus()
	engine := exec.New(reg, bus, exec.DefaultConfig(), store, store, store, store)
	srv := NewServer(store, engine, reg, nil, NewJWTAuth("secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/workflows", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_JWTAuthAcceptsIssuedToken(t *testing.T) {
	auth := NewJWTAuth("secret")
	token, err := auth.IssueToken("admin", time.Hour)
	require.NoError(t, err)

	reg := registry.New()
	store := memstore.New()
	bus := logging.NewBus()
	engine := exec.New(reg, bus, exec.DefaultConfig(), store, store, store, store)
	srv := NewServer(store, engine, reg, nil, auth)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
