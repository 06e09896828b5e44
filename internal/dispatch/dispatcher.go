// Package dispatch routes events to the correct recipient set. Inbound
// client frames are dispatched by type to the typing tracker; externally
// triggered notifications arrive over the bus and are fanned out through
// the connection registry.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fitlink/realtime-gateway/internal/domain"
	"github.com/fitlink/realtime-gateway/internal/metrics"
	"github.com/fitlink/realtime-gateway/internal/protocol"
	"github.com/fitlink/realtime-gateway/internal/pubsub"
	"github.com/fitlink/realtime-gateway/internal/typing"
)

// fanout is the slice of the connection registry the dispatcher needs.
type fanout interface {
	SendToUser(userID string, ev protocol.ServerEvent) int
}

// Dispatcher is both the public notify API consumed by collaborators and
// the inbound-frame router for connected clients.
type Dispatcher struct {
	registry  fanout
	typing    *typing.Tracker
	publisher pubsub.Publisher
	logger    *slog.Logger
}

// New wires a dispatcher to the bus. The subscriptions stay active until
// ctx is cancelled or the bus closes.
func New(ctx context.Context, reg fanout, tracker *typing.Tracker, pub pubsub.Publisher, sub pubsub.Subscriber) (*Dispatcher, error) {
	d := &Dispatcher{
		registry:  reg,
		typing:    tracker,
		publisher: pub,
		logger:    slog.Default().With("service", "dispatcher"),
	}

	subscriptions := map[string]pubsub.Handler{
		TopicMessagePersisted: d.handleNewMessage,
		TopicMessageRead:      d.handleMessageRead,
		TopicReactionUpdated:  d.handleReaction,
		TopicBadgeInvalidate:  d.handleBadgeCounts,
	}
	for topic, handler := range subscriptions {
		if err := sub.Subscribe(ctx, topic, handler); err != nil {
			return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return d, nil
}

// NotifyNewMessage announces a persisted message to every participant,
// optionally excluding the sender (whose client already has the message
// from its own mutation response).
func (d *Dispatcher) NotifyNewMessage(ctx context.Context, conversationID string, msg domain.Message, participantIDs []string, excludeSenderID string) error {
	return d.publish(ctx, TopicMessagePersisted, newMessageEnvelope{
		ConversationID:  conversationID,
		Message:         msg,
		ParticipantIDs:  participantIDs,
		ExcludeSenderID: excludeSenderID,
	})
}

// NotifyMessageRead announces a read receipt to exactly one recipient.
func (d *Dispatcher) NotifyMessageRead(ctx context.Context, conversationID, messageID, readerID, targetUserID string) error {
	return d.publish(ctx, TopicMessageRead, messageReadEnvelope{
		ConversationID: conversationID,
		MessageID:      messageID,
		ReaderID:       readerID,
		TargetUserID:   targetUserID,
	})
}

// NotifyReaction announces a reaction change to the given recipients.
func (d *Dispatcher) NotifyReaction(ctx context.Context, messageID, reaction, actingUserID string, notifyUserIDs []string, added bool) error {
	return d.publish(ctx, TopicReactionUpdated, reactionEnvelope{
		MessageID:     messageID,
		Reaction:      reaction,
		ActingUserID:  actingUserID,
		NotifyUserIDs: notifyUserIDs,
		Added:         added,
	})
}

// NotifyBadgeCounts nudges the given users to re-fetch their badge
// counts. The frame carries no payload; it is cache invalidation, not a
// data carrier.
func (d *Dispatcher) NotifyBadgeCounts(ctx context.Context, userIDs []string) error {
	return d.publish(ctx, TopicBadgeInvalidate, badgeEnvelope{UserIDs: userIDs})
}

func (d *Dispatcher) publish(ctx context.Context, topic string, envelope any) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", topic, err)
	}
	return d.publisher.Publish(ctx, pubsub.Message{Topic: topic, Payload: payload})
}

func (d *Dispatcher) handleNewMessage(ctx context.Context, msg pubsub.Message) error {
	var env newMessageEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return fmt.Errorf("decoding new-message envelope: %w", err)
	}

	ev := protocol.NewNewMessage(env.ConversationID, env.Message)
	for _, userID := range env.ParticipantIDs {
		if env.ExcludeSenderID != "" && userID == env.ExcludeSenderID {
			continue
		}
		d.registry.SendToUser(userID, ev)
	}
	metrics.EventsDispatched.WithLabelValues(protocol.TypeNewMessage).Inc()
	return nil
}

func (d *Dispatcher) handleMessageRead(ctx context.Context, msg pubsub.Message) error {
	var env messageReadEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return fmt.Errorf("decoding message-read envelope: %w", err)
	}

	d.registry.SendToUser(env.TargetUserID, protocol.NewMessageRead(env.MessageID, env.ConversationID))
	metrics.EventsDispatched.WithLabelValues(protocol.TypeMessageRead).Inc()
	return nil
}

func (d *Dispatcher) handleReaction(ctx context.Context, msg pubsub.Message) error {
	var env reactionEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return fmt.Errorf("decoding reaction envelope: %w", err)
	}

	ev := protocol.NewReaction(env.MessageID, env.Reaction, env.ActingUserID, env.Added)
	for _, userID := range env.NotifyUserIDs {
		d.registry.SendToUser(userID, ev)
	}
	metrics.EventsDispatched.WithLabelValues(ev.Type).Inc()
	return nil
}

func (d *Dispatcher) handleBadgeCounts(ctx context.Context, msg pubsub.Message) error {
	var env badgeEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return fmt.Errorf("decoding badge envelope: %w", err)
	}

	ev := protocol.NewBadgeCounts()
	for _, userID := range env.UserIDs {
		d.registry.SendToUser(userID, ev)
	}
	metrics.EventsDispatched.WithLabelValues(protocol.TypeBadgeCountsNudge).Inc()
	return nil
}

// HandleInbound routes one raw frame from an authenticated connection.
// Malformed or unknown frames are dropped with a warning; they never
// fail the connection.
func (d *Dispatcher) HandleInbound(ctx context.Context, userID string, raw []byte) {
	frame, err := protocol.ParseClientFrame(raw)
	if err != nil {
		metrics.FramesDropped.Inc()
		d.logger.Warn("Dropping malformed client frame",
			"user_id", userID,
			"error", err)
		return
	}

	switch f := frame.(type) {
	case protocol.ClientTypingStart:
		d.typing.Start(ctx, f.ConversationID, userID, f.UserName)
	case protocol.ClientTypingStop:
		d.typing.Stop(f.ConversationID, userID)
	case protocol.ClientSubscribe:
		// Placeholder for selective subscriptions: accepted, ignored.
		d.logger.Debug("Subscribe frame accepted", "user_id", userID)
	}
}
