package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"arena-relay/internal/models"
	"arena-relay/internal/presence"
	"arena-relay/pkg/logger"
)

// Sessions resolves a user to the connection that currently owns their session.
type Sessions interface {
	Get(userID int) (presence.Session, bool)
}

// Hub tracks every open client for shutdown and delivers to users through
// the session registry, so a user is reachable exactly when they are online.
type Hub struct {
	sessions Sessions

	mu      sync.Mutex
	clients map[string]*Client
}

func NewHub(sessions Sessions) *Hub {
	return &Hub{sessions: sessions, clients: make(map[string]*Client)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

// Emit queues env on the connection that owns the user's session without
// blocking.
func (h *Hub) Emit(userID int, env models.Envelope) bool {
	s, ok := h.sessions.Get(userID)
	if !ok {
		return false
	}
	c, ok := s.Conn.(*Client)
	if !ok {
		return false
	}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("Error marshaling %s for user %d: %v", env.Type, userID, err)
		return false
	}
	return c.Send(data)
}

// Count returns the number of open connections, superseded ones included
// until their pumps exit.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every client and waits for their pumps to unregister them.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close("server shutting down")
	}
	logger.Info("Closing %d websocket connections", len(clients))

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for h.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
