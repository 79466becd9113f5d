package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/listsync/server/internal/models"
	"github.com/listsync/server/internal/observability"
)

// Companion message types
const (
	CompanionTypeSnapshot    = "snapshot"
	CompanionTypeChanged     = "changed"
	CompanionTypeRequestSync = "request_sync"
	CompanionTypePing        = "ping"
	CompanionTypePong        = "pong"
	CompanionTypeError       = "error"
)

// CompanionMessage is the frame exchanged over the companion link
type CompanionMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CompanionClient is one connected companion device
type CompanionClient struct {
	ID         string
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *CompanionHub
	mu         sync.Mutex
	closedOnce sync.Once
}

// CompanionHub manages companion websocket connections and implements
// CompanionTransport for the engine's outbound pushes. Reachability is
// simply whether any companion is currently connected.
type CompanionHub struct {
	clients    map[*CompanionClient]bool
	register   chan *CompanionClient
	unregister chan *CompanionClient
	broadcast  chan []byte
	mu         sync.RWMutex

	engine       *SyncEngine
	adapter      *CompanionAdapter
	payloadLimit int
}

// NewCompanionHub creates a hub. The payload limit bounds both inbound
// reads and outbound sends.
func NewCompanionHub(engine *SyncEngine, adapter *CompanionAdapter, payloadLimit int) *CompanionHub {
	return &CompanionHub{
		clients:      make(map[*CompanionClient]bool),
		register:     make(chan *CompanionClient),
		unregister:   make(chan *CompanionClient),
		broadcast:    make(chan []byte, 64),
		engine:       engine,
		adapter:      adapter,
		payloadLimit: payloadLimit,
	}
}

// Run starts the hub's main loop
func (h *CompanionHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.Infof("Companion connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			observability.Infof("Companion disconnected: %s", client.ID)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Client buffer full, drop the connection
					go func(c *CompanionClient) {
						h.unregister <- c
					}(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub
func (h *CompanionHub) Register(client *CompanionClient) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *CompanionHub) Unregister(client *CompanionClient) {
	h.unregister <- client
}

// IsReachable reports whether at least one companion is connected
func (h *CompanionHub) IsReachable() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// Send pushes a stripped snapshot frame to every connected companion
func (h *CompanionHub) Send(payload []byte) error {
	if !h.IsReachable() {
		return &models.TransportError{Reason: "no companion connected"}
	}
	frame, err := json.Marshal(CompanionMessage{Type: CompanionTypeSnapshot, Payload: payload})
	if err != nil {
		return &models.TransportError{Reason: "encode snapshot frame", Cause: err}
	}
	select {
	case h.broadcast <- frame:
		return nil
	default:
		return &models.TransportError{Reason: "companion send queue full"}
	}
}

// ClientCount returns the number of connected companions
func (h *CompanionHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewClient creates a client bound to this hub
func (h *CompanionHub) NewClient(id string, conn *websocket.Conn) *CompanionClient {
	return &CompanionClient{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, 64),
		hub:  h,
	}
}

// HandleMessage dispatches one inbound companion frame
func (h *CompanionHub) HandleMessage(client *CompanionClient, data []byte) {
	var msg CompanionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.Warnf("Companion %s sent malformed frame: %v", client.ID, err)
		client.SendError("malformed frame")
		return
	}

	switch msg.Type {
	case CompanionTypeSnapshot:
		var snap models.CompanionSnapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			observability.Warnf("Companion %s sent malformed snapshot: %v", client.ID, err)
			client.SendError("malformed snapshot")
			return
		}
		if err := h.adapter.ApplyIncoming(context.Background(), &snap); err != nil {
			observability.Errorf("Companion snapshot merge failed: %v", err)
			client.SendError("snapshot merge failed")
		}

	case CompanionTypeChanged:
		h.engine.NotifyRemoteChange(SourceCompanion)

	case CompanionTypeRequestSync:
		if err := h.engine.TriggerManualSync(context.Background()); err != nil {
			observability.Errorf("Companion-requested sync failed: %v", err)
		}

	case CompanionTypePing:
		client.SendMessage(CompanionMessage{Type: CompanionTypePong})

	default:
		observability.Debugf("Companion %s sent unknown frame type %q", client.ID, msg.Type)
	}
}

// CompanionClient methods

// Close closes the client connection
func (c *CompanionClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	})
}

// SendMessage enqueues a frame for this client only
func (c *CompanionClient) SendMessage(msg CompanionMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		observability.Errorf("Error marshaling companion message: %v", err)
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// SendError enqueues an error frame for this client
func (c *CompanionClient) SendError(reason string) {
	payload, _ := json.Marshal(map[string]string{"reason": reason})
	c.SendMessage(CompanionMessage{Type: CompanionTypeError, Payload: payload})
}

// WritePump pumps frames from the hub to the websocket connection
func (c *CompanionClient) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.mu.Lock()
			err := c.Conn.WriteMessage(websocket.TextMessage, message)
			c.mu.Unlock()

			if err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump pumps frames from the websocket connection into the hub
func (c *CompanionClient) ReadPump() {
	defer c.Close()

	limit := int64(c.hub.payloadLimit)
	if limit <= 0 {
		limit = 256 * 1024
	}
	c.Conn.SetReadLimit(limit)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.Warnf("Companion read error: %v", err)
			}
			break
		}
		c.hub.HandleMessage(c, message)
	}
}
