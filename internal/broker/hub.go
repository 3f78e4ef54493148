package broker

import (
	"sync"

	"github.com/tirtalab/aquasense-core/internal/infrastructure/logging"
)

// Hub tracks the transport connections served by this broker instance,
// keyed by session ID. It is deliberately process-local: room membership
// lives in the Registry, the hub only knows how to reach the sessions that
// happen to be connected here.
type Hub struct {
	logger *logging.Logger
	mu     sync.RWMutex
	conns  map[string]Conn
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[string]Conn),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn Conn) {
	h.mu.Lock()
	h.conns[conn.SessionID()] = conn
	h.mu.Unlock()
	h.logger.Debug("session attached", "session_id", conn.SessionID(), "local_sessions", h.Len())
}

// Unregister removes a connection. No-op for unknown sessions, so the
// double disconnect raised after a forced close is harmless.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	_, existed := h.conns[sessionID]
	delete(h.conns, sessionID)
	h.mu.Unlock()
	if existed {
		h.logger.Debug("session detached", "session_id", sessionID, "local_sessions", h.Len())
	}
}

// SendTo delivers an event to a locally connected session. Returns false if
// the session is not connected to this instance.
func (h *Hub) SendTo(sessionID string, ev Event) bool {
	h.mu.RLock()
	conn, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	conn.Send(ev)
	return true
}

// CloseForced tears down a locally connected session, fire-and-forget.
// Returns false if the session is not connected to this instance.
func (h *Hub) CloseForced(sessionID string) bool {
	h.mu.RLock()
	conn, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	conn.CloseForced()
	return true
}

// Len returns the number of locally connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll force-closes every local session. Used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]Conn)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.CloseForced()
	}
}
