package builtin

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHTTPClient struct {
	lastReq *http.Request
	status  int
	body    string
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	return &http.Response{
		StatusCode: f.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

func TestHTTP_DefaultsMethodToGET(t *testing.T) {
	client := &fakeHTTPClient{status: 200, body: `{"ok":true}`}
	h := &HTTP{Client: client}
	out, err := h.Execute(context.Background(), map[string]any{
		"url": "https://example.test/${path}",
	}, map[string]any{"path": "widgets"}, newTestExecCtx(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, client.lastReq.Method)
	assert.Equal(t, "https://example.test/widgets", client.lastReq.URL.String())
	assert.Equal(t, 200, out["statusCode"])
	body, ok := out["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, body["ok"])
}

func TestHTTP_RejectsBlankURL(t *testing.T) {
	h := NewHTTP()
	_, err := h.Execute(context.Background(), map[string]any{"url": ""}, nil, newTestExecCtx(nil, nil))
	assert.Error(t, err)
}

func TestHTTP_Validate(t *testing.T) {
	h := NewHTTP()
	errs := h.Validate(map[string]any{})
	assert.NotEmpty(t, errs)
	errs = h.Validate(map[string]any{"url": "https://example.test"})
	assert.Empty(t, errs)
}
