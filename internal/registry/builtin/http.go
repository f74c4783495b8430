package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/expr"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
	"github.com/google/uuid"
)

// HTTPConfig is the httpRequest node's configuration. The URL, header values
// and a string body are run through internal/expr so ${var} interpolation
// applies; Method is used as given and a non-string body is JSON-encoded
// without interpolation.
type HTTPConfig struct {
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	Body         any               `json:"body"`
	TimeoutMs    int               `json:"timeoutMs"`
	CredentialID string            `json:"credentialId"`
}

// HTTPClient is the minimal transport abstraction the httpRequest executor
// needs, kept here so tests can substitute a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP implements the httpRequest executor: placeholder expansion, a
// swappable client, status/header mapping, credential-by-type application,
// and verbose request/response logging.
type HTTP struct {
	Client HTTPClient
}

func NewHTTP() *HTTP { return &HTTP{} }

func (h *HTTP) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "httpRequest",
		DisplayName: "HTTP Request",
		Category:    "network",
		Description: "Performs an HTTP request and returns the response body, status and headers",
	}
}

func (HTTP) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[HTTPConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return map[string]string{"url": "url must not be blank"}
	}
	return nil
}

func (h *HTTP) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[HTTPConfig](config)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, domainerrors.NewConfigurationError("httpRequest", "url must not be blank")
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	scope := mergedScope(input, execCtx)
	url := expr.Evaluate(cfg.URL, scope)

	var body io.Reader
	var bodyBytes []byte
	if cfg.Body != nil {
		if s, ok := cfg.Body.(string); ok {
			bodyBytes = []byte(expr.Evaluate(s, scope))
		} else {
			bodyBytes, err = json.Marshal(cfg.Body)
			if err != nil {
				return nil, fmt.Errorf("httpRequest: encode body: %w", err)
			}
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &domainerrors.ExternalAPIError{APIName: "httpRequest", Message: err.Error(), Cause: err}
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, expr.Evaluate(v, scope))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if cfg.CredentialID != "" && execCtx != nil {
		if err := h.applyCredential(ctx, cfg.CredentialID, req, execCtx); err != nil {
			return nil, err
		}
	}

	if execCtx != nil && execCtx.Verbose && execCtx.Bus != nil {
		entry := logging.NewDataEntry(logging.CategoryNodeInput, execCtx.ExecutionID, "", fmt.Sprintf("%s %s body=%s", method, url, string(bodyBytes)))
		execCtx.Bus.Emit(entry)
	}

	client := h.Client
	if client == nil {
		timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &domainerrors.ExternalAPIError{APIName: "httpRequest", Transient: true, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domainerrors.ExternalAPIError{APIName: "httpRequest", StatusCode: resp.StatusCode, Message: err.Error(), Cause: err}
	}

	if execCtx != nil && execCtx.Verbose && execCtx.Bus != nil {
		preview := respBody
		entry := logging.NewDataEntry(logging.CategoryNodeOutput, execCtx.ExecutionID, "", fmt.Sprintf("status=%d body=%s", resp.StatusCode, string(preview)))
		execCtx.Bus.Emit(entry)
	}

	headers := map[string]any{}
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	out := mergeInput(input)
	out["statusCode"] = resp.StatusCode
	out["headers"] = headers
	out["body"] = decodeBody(respBody, resp.Header.Get("Content-Type"))
	return out, nil
}

func decodeBody(raw []byte, contentType string) any {
	if strings.Contains(contentType, "application/json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func (h *HTTP) applyCredential(ctx context.Context, credentialID string, req *http.Request, execCtx *execctx.Context) error {
	id, err := uuid.Parse(credentialID)
	if err != nil {
		return domainerrors.NewConfigurationError("httpRequest", "invalid credentialId")
	}
	cred, secret, err := execCtx.ResolveCredential(ctx, id)
	if err != nil {
		return &domainerrors.EncryptionError{ResourceKind: "credential", ResourceID: credentialID, Cause: err}
	}
	switch cred.Type() {
	case "api-key":
		req.Header.Set("X-Api-Key", string(secret))
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+string(secret))
	case "basic":
		req.Header.Set("Authorization", "Basic "+string(secret))
	case "custom-header":
		parts := strings.SplitN(string(secret), ":", 2)
		if len(parts) == 2 {
			req.Header.Set(parts[0], parts[1])
		}
	case "oauth2":
		req.Header.Set("Authorization", "Bearer "+string(secret))
	}
	return nil
}
