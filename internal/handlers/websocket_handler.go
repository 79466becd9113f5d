package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/listsync/server/internal/observability"
	"github.com/listsync/server/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The companion pairs over the local network; origins vary
		return true
	},
}

// WebSocketHandler upgrades companion connections into the hub
type WebSocketHandler struct {
	hub *services.CompanionHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.CompanionHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleCompanion upgrades HTTP to WebSocket and manages the connection
// GET /ws/companion
func (h *WebSocketHandler) HandleCompanion(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Warnf("Companion upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	h.hub.Register(client)

	go client.WritePump()

	// Blocks until the connection closes.
	client.ReadPump()
}
