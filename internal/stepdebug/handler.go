package stepdebug

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Authenticator validates an incoming websocket upgrade request. Satisfied
// structurally by internal/adminapi's bearer-token verifier; stepdebug
// itself never imports golang-jwt (that wiring belongs to adminapi) and
// falls back to NoAuth when none is configured.
type Authenticator interface {
	Authenticate(r *http.Request) (subject string, err error)
}

// NoAuth accepts every connection. The default when cmd/server wires no
// Authenticator.
type NoAuth struct{}

func (NoAuth) Authenticate(r *http.Request) (string, error) { return "anonymous", nil }

// Handler upgrades HTTP requests to step-debug websocket connections.
// Handler.
type Handler struct {
	hub        *Hub
	controller *Controller
	auth       Authenticator
	logger     *slog.Logger
}

// NewHandler constructs a Handler. auth may be nil (NoAuth is used then).
func NewHandler(hub *Hub, controller *Controller, auth Authenticator, logger *slog.Logger) *Handler {
	if auth == nil {
		auth = NoAuth{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, controller: controller, auth: auth, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Authenticate(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("stepdebug websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(uuid.NewString(), h.hub, h.controller, conn)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}
