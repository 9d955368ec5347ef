package ws

import (
	"sync"
)

// Hub tracks live realtime connections keyed by user ID so that they can
// be closed when the user signs out.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*Conn]struct{}),
	}
}

// Register adds a connection for the given user.
func (h *Hub) Register(userID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*Conn]struct{})
	}
	h.conns[userID][c] = struct{}{}
}

// Unregister removes a connection for the given user.
func (h *Hub) Unregister(userID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
}

// DisconnectUser closes every connection of userID.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	return len(conns)
}

// Connections returns the number of live connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.conns {
		n += len(conns)
	}
	return n
}

// Users returns the number of users with at least one connection.
func (h *Hub) Users() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
