package registry

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// State is the liveness of a connection. A connection is created open,
// moves to closing when either side starts teardown, and ends closed
// once its outbound channel is shut.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

const sendBufferSize = 256

// Conn is one live transport session. It is owned by the Registry for
// its lifetime; the gateway's pumps are the only readers and writers of
// the underlying socket.
type Conn struct {
	// ID is a per-connection uuid used for log correlation.
	ID string
	// UserID is the internal identity the connection is registered under.
	// With impersonation in play this is the impersonated user's id.
	UserID string

	sock *websocket.Conn

	mu    sync.RWMutex
	state State
	send  chan []byte
}

// NewConn wraps an accepted socket. sock may be nil in tests; only the
// pumps dereference it.
func NewConn(id, userID string, sock *websocket.Conn) *Conn {
	return &Conn{
		ID:     id,
		UserID: userID,
		sock:   sock,
		state:  StateOpen,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Socket returns the underlying transport.
func (c *Conn) Socket() *websocket.Conn { return c.sock }

// Outbound is the channel the write pump drains. Messages appear in the
// order they were enqueued.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// IsOpen reports whether the connection is still in the open state.
func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateOpen
}

// Enqueue hands a payload to the connection's outbound queue. Returns
// false without error if the connection is no longer open or its buffer
// is full; a half-closed or lagging connection is expected, not
// exceptional.
func (c *Conn) Enqueue(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateOpen {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		slog.Warn("Connection send buffer full, dropping message",
			"connection_id", c.ID,
			"user_id", c.UserID)
		return false
	}
}

// BeginClose marks the connection as closing so no further payloads are
// enqueued. Idempotent.
func (c *Conn) BeginClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOpen {
		c.state = StateClosing
	}
}

// Shutdown closes the outbound channel and marks the connection closed.
// Must be called exactly once after the connection leaves the registry;
// Enqueue can no longer reach the channel by then.
func (c *Conn) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	close(c.send)
}
