package builtin

import (
	"context"
	"time"

	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// ManualTriggerConfig is the manual trigger's configuration; it has none
// beyond identity, since a manual trigger only fires on direct submission.
type ManualTriggerConfig struct{}

// ScheduleTriggerConfig is the schedule trigger's configuration; CronExpr
// is a robfig/cron/v3 expression owned and parsed by internal/trigger's
// dispatcher, not by this executor.
type ScheduleTriggerConfig struct {
	CronExpr string `json:"cronExpr"`
}

// WebhookTriggerConfig is the webhook trigger's configuration.
type WebhookTriggerConfig struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// FileEventTriggerConfig is the fileEvent trigger's configuration.
type FileEventTriggerConfig struct {
	Path string `json:"path"`
}

// triggerOutput is shared scaffolding: every trigger executor's Execute builds a
// {triggeredAt, ...} output map carrying whatever payload the dispatcher
// attached to input, per trigger output contract.
func triggerOutput(kind string, input map[string]any) map[string]any {
	out := mergeInput(input)
	out["triggeredAt"] = time.Now().UTC().Format(time.RFC3339)
	out["triggerKind"] = kind
	return out
}

// ManualTrigger is the manual-invocation trigger entry point.
type ManualTrigger struct{}

func NewManualTrigger() *ManualTrigger { return &ManualTrigger{} }

func (ManualTrigger) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "manualTrigger",
		DisplayName: "Manual Trigger",
		Category:    "trigger",
		TriggerKind: registry.TriggerKind("manual"),
		Description: "Fires only on direct, explicit submission",
	}
}

func (ManualTrigger) Validate(map[string]any) map[string]string { return nil }

func (ManualTrigger) Execute(_ context.Context, _, input map[string]any, _ *execctx.Context) (map[string]any, error) {
	return triggerOutput("manual", input), nil
}

// ScheduleTrigger fires on a robfig/cron/v3 timer owned by the trigger
// dispatcher (internal/trigger), not by this executor.
type ScheduleTrigger struct{}

func NewScheduleTrigger() *ScheduleTrigger { return &ScheduleTrigger{} }

func (ScheduleTrigger) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "scheduleTrigger",
		DisplayName: "Schedule Trigger",
		Category:    "trigger",
		TriggerKind: registry.TriggerKind("schedule"),
		Description: "Fires on a cron schedule owned by the trigger dispatcher",
	}
}

func (ScheduleTrigger) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[ScheduleTriggerConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.CronExpr == "" {
		return map[string]string{"cronExpr": "cronExpr must not be blank"}
	}
	return nil
}

func (ScheduleTrigger) Execute(_ context.Context, _, input map[string]any, _ *execctx.Context) (map[string]any, error) {
	return triggerOutput("schedule", input), nil
}

// WebhookTrigger fires on an inbound HTTP request routed by the trigger
// dispatcher to Path/Method, go (method check, JSON body decode into the payload map).
type WebhookTrigger struct{}

func NewWebhookTrigger() *WebhookTrigger { return &WebhookTrigger{} }

func (WebhookTrigger) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "webhookTrigger",
		DisplayName: "Webhook Trigger",
		Category:    "trigger",
		TriggerKind: registry.TriggerKind("webhook"),
		Description: "Fires on an inbound HTTP request routed by the trigger dispatcher",
	}
}

func (WebhookTrigger) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[WebhookTriggerConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.Path == "" {
		return map[string]string{"path": "path must not be blank"}
	}
	return nil
}

func (WebhookTrigger) Execute(_ context.Context, _, input map[string]any, _ *execctx.Context) (map[string]any, error) {
	return triggerOutput("webhook", input), nil
}

// FileEventTrigger fires on an fsnotify event over Path, owned by the
// trigger dispatcher's file-watch set.
type FileEventTrigger struct{}

func NewFileEventTrigger() *FileEventTrigger { return &FileEventTrigger{} }

func (FileEventTrigger) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "fileEventTrigger",
		DisplayName: "File Event Trigger",
		Category:    "trigger",
		TriggerKind: registry.TriggerKind("fileEvent"),
		Description: "Fires on a filesystem change under a watched path",
	}
}

func (FileEventTrigger) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[FileEventTriggerConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.Path == "" {
		return map[string]string{"path": "path must not be blank"}
	}
	return nil
}

func (FileEventTrigger) Execute(_ context.Context, _, input map[string]any, _ *execctx.Context) (map[string]any, error) {
	return triggerOutput("fileEvent", input), nil
}
