// Package realtime broadcasts session lifecycle events to connected
// clients over WebSocket.
package realtime

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one broadcast domain event.
type Event struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId,omitempty"`
	CounterpartName string `json:"counterpartName,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}

const (
	EventSessionCreated  = "session_created"
	EventSessionSwitched = "session_switched"
)

// Publisher is the event surface consumed by the router.
type Publisher interface {
	Publish(userID string, event Event)
}

// Hub tracks per-user WebSocket subscriptions and fans events out to them.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*websocket.Conn]bool
	upgrader    websocket.Upgrader
}

// NewHub bootstraps an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleWS upgrades the request and subscribes the connection to the user's
// event stream until the client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[realtime] upgrade failed: %v", err)
		return
	}

	h.subscribe(userID, conn)
	defer h.unsubscribe(userID, conn)

	// Drain control frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish sends the event to every connection subscribed for the user.
// Connections that fail to write are dropped.
func (h *Hub) Publish(userID string, event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subscribers[userID]))
	for conn := range h.subscribers[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("[realtime] write failed for user=%s, dropping connection: %v", userID, err)
			h.unsubscribe(userID, conn)
			conn.Close()
		}
	}
}

func (h *Hub) subscribe(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[*websocket.Conn]bool)
	}
	h.subscribers[userID][conn] = true
}

func (h *Hub) unsubscribe(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[userID], conn)
	if len(h.subscribers[userID]) == 0 {
		delete(h.subscribers, userID)
	}
}
