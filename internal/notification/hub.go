package notification

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"safety-service/internal/logging"
)

const (
	maxConnections = 100
	writeTimeout   = 5 * time.Second
)

// Hub manages live feed WebSocket connections.
type Hub struct {
	connections map[*websocket.Conn]string // conn -> actor id
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]string),
		logger:      logger,
	}
}

// Add registers a connection. It returns false when the hub is full.
func (h *Hub) Add(actorID string, conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.connections) >= maxConnections {
		h.logger.Warnf("Max live feed connections reached, rejecting %s", actorID)
		return false
	}
	h.connections[conn] = actorID
	h.logger.Infof("Added live feed connection for %s (total: %d)", actorID, len(h.connections))
	return true
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if actorID, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		h.logger.Infof("Removed live feed connection for %s (remaining: %d)", actorID, len(h.connections))
	}
}

// Broadcast writes message to every connection, dropping the ones that fail.
func (h *Hub) Broadcast(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, actorID := range h.connections {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to send live feed message to %s: %v", actorID, err)
			_ = conn.Close()
			delete(h.connections, conn)
		}
	}
}

func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections)
}

func (h *Hub) CloseAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.connections {
		_ = conn.Close()
		delete(h.connections, conn)
	}
}
