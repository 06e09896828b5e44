package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillBus implements Publisher and Subscriber over watermill's
// in-process GoChannel. The gateway is single-process by design, so no
// broker-backed implementation exists.
type WatermillBus struct {
	pub message.Publisher
	sub message.Subscriber
}

// NewWatermillBus initializes the in-memory bus.
func NewWatermillBus() *WatermillBus {
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)
	return &WatermillBus{pub: goChannel, sub: goChannel}
}

// Publish implements Publisher.
func (b *WatermillBus) Publish(ctx context.Context, msg Message) error {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	return b.pub.Publish(msg.Topic, wmMsg)
}

// Subscribe implements Subscriber. The handler runs on a background
// goroutine per topic; a handler error nacks the message.
func (b *WatermillBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			msg := Message{
				Topic:    topic,
				Payload:  wmMsg.Payload,
				Metadata: wmMsg.Metadata,
			}
			if err := handler(ctx, msg); err != nil {
				slog.Error("Failed to handle bus message",
					"topic", topic,
					"msg_id", wmMsg.UUID,
					"error", err)
				wmMsg.Nack()
				continue
			}
			wmMsg.Ack()
		}
	}()

	return nil
}

// Close shuts the bus down; in-flight subscriptions drain and end.
func (b *WatermillBus) Close() error {
	return b.sub.Close()
}
