// Package stepdebug implements the step-debug surface: an
// external controller that can suspend and resume a running execution after
// each node, and a push channel (websocket hub) that broadcasts pause
// notifications and the execution's history ribbon to connected UIs.
package stepdebug

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Event types pushed to subscribed clients.
const (
	EventPaused       = "paused"
	EventNodeStarted  = "node.started"
	EventNodeFinished = "node.finished"
	EventExecutionEnd = "execution.end"
)

// Command types accepted from clients.
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
	CmdContinue    = "continue"
	CmdCancel      = "cancel"
)

// Event is the msgpack-encoded message pushed from server to client.
type Event struct {
	Type        string    `msgpack:"type"`
	Timestamp   time.Time `msgpack:"timestamp"`
	ExecutionID string    `msgpack:"executionId"`
	NodeID      string    `msgpack:"nodeId,omitempty"`
	NodeName    string    `msgpack:"nodeName,omitempty"`
	NodeIndex   int       `msgpack:"nodeIndex,omitempty"`
	TotalNodes  int       `msgpack:"totalNodes,omitempty"`
	Status      string    `msgpack:"status,omitempty"`
	Ribbon      []Entry   `msgpack:"ribbon,omitempty"`
}

// Command is the msgpack-encoded message accepted from client to server.
type Command struct {
	Action      string `msgpack:"action"`
	ExecutionID string `msgpack:"executionId,omitempty"`
}

// Response acknowledges a Command.
type Response struct {
	Type    string `msgpack:"type"`
	Success bool   `msgpack:"success"`
	Message string `msgpack:"message,omitempty"`
}

func newEvent(eventType, executionID string) *Event {
	return &Event{Type: eventType, Timestamp: time.Now(), ExecutionID: executionID}
}

func encode(v any) ([]byte, error) { return msgpack.Marshal(v) }

func decodeCommand(data []byte) (Command, error) {
	var cmd Command
	err := msgpack.Unmarshal(data, &cmd)
	return cmd, err
}
