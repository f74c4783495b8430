package logging

import "github.com/rs/zerolog"

// ConsoleObserver renders every LogEntry onto a zerolog.Logger: prefixed,
// verbose-gated output matching cmd/server's structured-logging setup.
//
// When Verbose is false (the default, off unless explicitly enabled),
// node-input/node-output/variable/expression-eval entries log only the
// Preview field; Verbose additionally logs Full.
type ConsoleObserver struct {
	logger  zerolog.Logger
	Verbose bool
}

func NewConsoleObserver(logger zerolog.Logger) *ConsoleObserver {
	return &ConsoleObserver{logger: logger}
}

func (c *ConsoleObserver) Observe(entry LogEntry) {
	event := c.levelEvent(entry.Level)
	event = event.Str("category", string(entry.Category))
	if entry.ExecutionID != "" {
		event = event.Str("executionId", entry.ExecutionID)
	}
	if entry.NodeID != "" {
		event = event.Str("nodeId", entry.NodeID)
	}
	for k, v := range entry.Context {
		event = event.Interface(k, v)
	}
	if entry.Preview != "" {
		event = event.Str("preview", entry.Preview)
	}
	if c.Verbose && entry.Full != "" {
		event = event.Str("full", entry.Full)
	}
	event.Msg(entry.Message)
}

func (c *ConsoleObserver) levelEvent(level Level) *zerolog.Event {
	switch level {
	case LevelDebug:
		return c.logger.Debug()
	case LevelWarn:
		return c.logger.Warn()
	case LevelError:
		return c.logger.Error()
	default:
		return c.logger.Info()
	}
}
