// Package pubsub is the thin message-bus seam between the gateway and
// its collaborators. The persistence service publishes "something was
// written" notifications here; the dispatcher subscribes and fans them
// out to live connections.
package pubsub

import "context"

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to
	// (e.g. "messages.persisted").
	Topic string
	// Payload contains the JSON-encoded event body.
	Payload []byte
	// Metadata can carry arbitrary key-value context.
	Metadata map[string]string
}

// Handler processes a received message. A non-nil error nacks it.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus. Subscribe registers the
// handler and returns immediately; delivery happens on a background
// goroutine.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
