package stepdebug

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Client is one websocket connection to a step-debug UI, with handleCommand
// wired to a Controller for continue/cancel.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan *Event
	controller *Controller

	id          string
	executionID string
}

// NewClient creates a Client bound to hub and controller.
func NewClient(id string, hub *Hub, controller *Controller, conn *websocket.Conn) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan *Event, sendBufferSize),
		controller: controller,
		id:         id,
	}
}

// readPump pumps commands from the websocket connection to the hub/controller.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		cmd, err := decodeCommand(message)
		if err != nil {
			c.sendResponse(&Response{Type: "error", Success: false, Message: "invalid command format"})
			continue
		}
		c.handleCommand(&cmd)
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := encode(event)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleCommand(cmd *Command) {
	switch cmd.Action {
	case CmdSubscribe:
		if cmd.ExecutionID == "" {
			c.sendResponse(&Response{Type: CmdSubscribe, Message: "executionId required"})
			return
		}
		c.hub.Subscribe(c, cmd.ExecutionID)
		for _, e := range c.controller.ribbons.get(cmd.ExecutionID) {
			ev := newEvent(EventNodeFinished, cmd.ExecutionID)
			ev.NodeID, ev.NodeName, ev.Status = e.NodeID, e.NodeName, e.Status
			c.send <- ev
		}
		c.sendResponse(&Response{Type: CmdSubscribe, Success: true, Message: "subscribed to " + cmd.ExecutionID})
	case CmdUnsubscribe:
		c.hub.Unsubscribe(c, cmd.ExecutionID)
		c.sendResponse(&Response{Type: CmdUnsubscribe, Success: true})
	case CmdContinue:
		ok := c.controller.Continue(cmd.ExecutionID)
		c.sendResponse(&Response{Type: CmdContinue, Success: ok})
	case CmdCancel:
		ok := c.controller.Cancel(cmd.ExecutionID)
		c.sendResponse(&Response{Type: CmdCancel, Success: ok})
	default:
		c.sendResponse(&Response{Type: "error", Message: "unknown command: " + cmd.Action})
	}
}

func (c *Client) sendResponse(resp *Response) {
	payload, err := encode(resp)
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.BinaryMessage, payload)
}
