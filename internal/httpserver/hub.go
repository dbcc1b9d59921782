package httpserver

import (
	"sync"

	"github.com/sirupsen/logrus"

	"sessionhub/internal/chatsession"
)

// Hub tracks open chat connections for server-wide broadcasts.
type Hub struct {
	mu    sync.RWMutex
	conns map[*chatsession.Conn]struct{}
	log   *logrus.Entry
}

// NewHub returns an empty hub.
func NewHub(log *logrus.Entry) *Hub {
	return &Hub{conns: make(map[*chatsession.Conn]struct{}), log: log}
}

// Add registers conn.
func (h *Hub) Add(conn *chatsession.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

// Remove unregisters conn.
func (h *Hub) Remove(conn *chatsession.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends v to every registered connection. Failed sends are logged;
// the read loop of that connection removes it.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	conns := make([]*chatsession.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(v); err != nil {
			h.log.WithError(err).Debug("broadcast send failed")
		}
	}
}
