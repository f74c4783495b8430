package stepdebug

import (
	"log/slog"
	"sync"
)

// broadcastMsg is a message queued for delivery to clients subscribed to one
// execution.
type broadcastMsg struct {
	executionID string
	event       *Event
}

// Hub manages websocket client connections and fans pushed Events out to
// whichever clients are subscribed to the event's execution id. Subscription
// is keyed on a single axis (executionID) since step-debug has no
// workflow- or user-level audience.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byExecutionID map[string]map[*Client]bool

	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHub creates a Hub. Call Run in its own goroutine before serving
// connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *broadcastMsg, 256),
		byExecutionID: make(map[string]map[*Client]bool),
		logger:        logger,
	}
}

// Run processes register/unregister/broadcast until the hub is discarded.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.logger.Debug("stepdebug client registered", "client_id", c.id, "total_clients", len(h.clients))
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if clients, ok := h.byExecutionID[c.executionID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.byExecutionID, c.executionID)
		}
	}
	h.logger.Debug("stepdebug client unregistered", "client_id", c.id, "total_clients", len(h.clients))
}

// Broadcast queues event for every client subscribed to executionID.
func (h *Hub) Broadcast(executionID string, event *Event) {
	h.broadcast <- &broadcastMsg{executionID: executionID, event: event}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.byExecutionID[msg.executionID] {
		select {
		case client.send <- msg.event:
		default:
			h.logger.Warn("stepdebug client buffer full, dropping event", "client_id", client.id, "event_type", msg.event.Type)
		}
	}
}

// Subscribe attaches client to executionID's audience.
func (h *Hub) Subscribe(client *Client, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.executionID = executionID
	if h.byExecutionID[executionID] == nil {
		h.byExecutionID[executionID] = make(map[*Client]bool)
	}
	h.byExecutionID[executionID][client] = true
}

// Unsubscribe detaches client from executionID's audience.
func (h *Hub) Unsubscribe(client *Client, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.byExecutionID[executionID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.byExecutionID, executionID)
		}
	}
	if client.executionID == executionID {
		client.executionID = ""
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer  h.mu.RUnlock()
	return len(h.clients)
}
