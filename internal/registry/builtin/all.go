package builtin

import "github.com/tolgayilmaz86/nervemind/internal/registry"

// All returns one instance of every built-in executor, in the order cmd/server wires them into a fresh Registry via
// Registry.RegisterBuiltin.
func All() []registry.NodeExecutor {
	return []registry.NodeExecutor{
		NewHTTP(),
		NewCode(),
		NewIf(),
		NewSwitch(),
		NewLoop(),
		NewMerge(),
		NewSet(),
		NewFilter(),
		NewSort(),
		NewLLMChat(),
		NewSubworkflow(),
		NewParallel(),
		NewTryCatch(),
		NewRetry(),
		NewRateLimit(),
		NewExecuteCommand(),
		NewManualTrigger(),
		NewScheduleTrigger(),
		NewWebhookTrigger(),
		NewFileEventTrigger(),
	}
}
