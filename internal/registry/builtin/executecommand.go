package builtin

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/expr"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// ExecuteCommandConfig is the executeCommand node's configuration: a thin
// typed wrapper around what a host-process node inevitably needs. Command and each arg
// go through internal/expr so ${var} interpolation applies exactly as it
// does for httpRequest's url/headers.
type ExecuteCommandConfig struct {
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	WorkingDir string   `json:"workingDir"`
	TimeoutMs  int      `json:"timeoutMs"`
}

const defaultCommandTimeout = 30 * time.Second

// ExecuteCommand runs a host-process command via os/exec, the standard
// library's own process-execution surface.
type ExecuteCommand struct{}

func NewExecuteCommand() *ExecuteCommand { return &ExecuteCommand{} }

func (ExecuteCommand) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "executeCommand",
		DisplayName: "Execute Command",
		Category:    "system",
		Description: "Runs a host-process command and captures its exit code and output",
	}
}

func (ExecuteCommand) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[ExecuteCommandConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.Command == "" {
		return map[string]string{"command": "command must not be blank"}
	}
	return nil
}

func (ExecuteCommand) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[ExecuteCommandConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.Command == "" {
		return nil, domainerrors.NewConfigurationError("executeCommand", "command must not be blank")
	}

	scope := mergedScope(input, execCtx)
	command := expr.Evaluate(cfg.Command, scope)
	args := make([]string, len(cfg.Args))
	for i, a := range cfg.Args {
		args[i] = expr.Evaluate(a, scope)
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, args...)
	if cfg.WorkingDir != "" {
		cmd.Dir = cfg.WorkingDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := mergeInput(input)
	out["stdout"] = stdout.String()
	out["stderr"] = stderr.String()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	out["exitCode"] = exitCode

	if runErr != nil {
		if runCtx.Err() != nil {
			return nil, &domainerrors.ExternalAPIError{APIName: "executeCommand", Message: "command timed out", Cause: runCtx.Err()}
		}
		return nil, &domainerrors.ExternalAPIError{APIName: "executeCommand", Message: runErr.Error(), Cause: runErr}
	}
	return out, nil
}
