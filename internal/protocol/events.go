// Package protocol defines the JSON frames exchanged over a gateway
// connection and the close codes used to signal policy rejections.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/fitlink/realtime-gateway/internal/domain"
)

// Close codes. Policy rejections never carry a structured error payload;
// the numeric close code is the whole signal.
const (
	// StatusAuthRequired covers both a missing credential and a
	// credential that failed verification.
	StatusAuthRequired websocket.StatusCode = 4001
	// StatusRateLimited is the standard "try again later" code.
	StatusRateLimited = websocket.StatusTryAgainLater
)

// Server→client frame type discriminators.
const (
	TypeConnected        = "connected"
	TypeNewMessage       = "new_message"
	TypeTypingStart      = "typing_start"
	TypeTypingStop       = "typing_stop"
	TypeMessageRead      = "message_read"
	TypeReactionAdded    = "reaction_added"
	TypeReactionRemoved  = "reaction_removed"
	TypeBadgeCountsNudge = "badge_counts_updated"
)

// ServerEvent is the sealed set of frames the gateway pushes to clients.
// Each event knows its own discriminator; encoding always goes through
// Encode so the type tag can never be forgotten or mismatched.
type ServerEvent interface {
	eventType() string
}

type ConnectedEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type NewMessageEvent struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversationId"`
	Message        domain.Message `json:"message"`
}

type TypingStartEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
}

type TypingStopEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type MessageReadEvent struct {
	Type           string `json:"type"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type ReactionEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
	UserID    string `json:"userId"`
}

type BadgeCountsEvent struct {
	Type string `json:"type"`
}

func (ConnectedEvent) eventType() string   { return TypeConnected }
func (NewMessageEvent) eventType() string  { return TypeNewMessage }
func (TypingStartEvent) eventType() string { return TypeTypingStart }
func (TypingStopEvent) eventType() string  { return TypeTypingStop }
func (MessageReadEvent) eventType() string { return TypeMessageRead }
func (e ReactionEvent) eventType() string  { return e.Type }
func (BadgeCountsEvent) eventType() string { return TypeBadgeCountsNudge }

// Constructors fill in the type tag so call sites cannot produce an
// untagged frame.

func NewConnected(userID string) ConnectedEvent {
	return ConnectedEvent{Type: TypeConnected, UserID: userID}
}

func NewNewMessage(conversationID string, msg domain.Message) NewMessageEvent {
	return NewMessageEvent{Type: TypeNewMessage, ConversationID: conversationID, Message: msg}
}

func NewTypingStart(conversationID, userID, userName string) TypingStartEvent {
	return TypingStartEvent{Type: TypeTypingStart, ConversationID: conversationID, UserID: userID, UserName: userName}
}

func NewTypingStop(conversationID, userID string) TypingStopEvent {
	return TypingStopEvent{Type: TypeTypingStop, ConversationID: conversationID, UserID: userID}
}

func NewMessageRead(messageID, conversationID string) MessageReadEvent {
	return MessageReadEvent{Type: TypeMessageRead, MessageID: messageID, ConversationID: conversationID}
}

func NewReaction(messageID, reaction, userID string, added bool) ReactionEvent {
	t := TypeReactionAdded
	if !added {
		t = TypeReactionRemoved
	}
	return ReactionEvent{Type: t, MessageID: messageID, Reaction: reaction, UserID: userID}
}

func NewBadgeCounts() BadgeCountsEvent {
	return BadgeCountsEvent{Type: TypeBadgeCountsNudge}
}

// Encode serializes a server event to its wire form.
func Encode(ev ServerEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", ev.eventType(), err)
	}
	return payload, nil
}
