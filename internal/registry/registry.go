// Package registry maintains the live mapping from user identity to the
// set of open connections that user currently holds. It is the central
// shared-mutable-state structure of the gateway; every connection's
// control flow touches it concurrently.
package registry

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/fitlink/realtime-gateway/internal/metrics"
	"github.com/fitlink/realtime-gateway/internal/protocol"
)

// Registry tracks connections per user. A user id key exists iff the
// user holds at least one connection; the key is removed the instant its
// set empties.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[*Conn]struct{}
	logger *slog.Logger
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		conns:  make(map[string]map[*Conn]struct{}),
		logger: slog.Default().With("service", "connection_registry"),
	}
}

// Register adds a connection to the user's set, creating the set if
// absent. Multiple devices for one user land in the same set.
func (r *Registry) Register(userID string, c *Conn) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[userID] = set
	}
	set[c] = struct{}{}
	total := len(set)
	r.mu.Unlock()

	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()
	r.logger.Info("Connection registered",
		"user_id", userID,
		"connection_id", c.ID,
		"user_connections", total)
}

// Deregister removes the connection and deletes the user's key when the
// set empties. Safe to call for a connection that was never registered.
func (r *Registry) Deregister(userID string, c *Conn) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if ok {
		if _, member := set[c]; member {
			delete(set, c)
			metrics.ActiveConnections.Dec()
		} else {
			ok = false
		}
		if len(set) == 0 {
			delete(r.conns, userID)
		}
	}
	remaining := len(set)
	r.mu.Unlock()

	if !ok {
		return
	}

	c.Shutdown()
	r.logger.Info("Connection deregistered",
		"user_id", userID,
		"connection_id", c.ID,
		"user_connections", remaining)
}

// SendToUser serializes the event once and pushes it to every open
// connection in the user's set. A user with no open connections is a
// no-op; events are never queued for later delivery. The set snapshot is
// taken under lock so a concurrent register/deregister cannot split the
// fan-out. Returns the number of connections the event was enqueued to.
func (r *Registry) SendToUser(userID string, ev protocol.ServerEvent) int {
	payload, err := protocol.Encode(ev)
	if err != nil {
		r.logger.Error("Failed to encode server event", "user_id", userID, "error", err)
		return 0
	}
	return r.sendRaw(userID, payload)
}

func (r *Registry) sendRaw(userID string, payload []byte) int {
	r.mu.RLock()
	set, ok := r.conns[userID]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	snapshot := make([]*Conn, 0, len(set))
	for c := range set {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range snapshot {
		if c.Enqueue(payload) {
			delivered++
		}
	}
	return delivered
}

// IsOnline reports whether the user has at least one open connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.conns[userID] {
		if c.IsOpen() {
			return true
		}
	}
	return false
}

// OnlineUsers returns the ids of all users currently holding a
// registry entry.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	return users
}

// CloseAll tears down every connection, used during graceful shutdown.
// Each socket gets the given close code; the registry empties.
func (r *Registry) CloseAll(code websocket.StatusCode, reason string) {
	r.mu.Lock()
	all := make(map[string][]*Conn, len(r.conns))
	for userID, set := range r.conns {
		for c := range set {
			all[userID] = append(all[userID], c)
		}
	}
	r.conns = make(map[string]map[*Conn]struct{})
	r.mu.Unlock()

	for _, conns := range all {
		for _, c := range conns {
			c.BeginClose()
			if sock := c.Socket(); sock != nil {
				_ = sock.Close(code, reason)
			}
			c.Shutdown()
			metrics.ActiveConnections.Dec()
		}
	}
}
