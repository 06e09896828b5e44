package protocol

import (
	"encoding/json"
	"fmt"
)

// Client→server frame type discriminators.
const (
	ClientTypeTypingStart = "typing_start"
	ClientTypeTypingStop  = "typing_stop"
	ClientTypeSubscribe   = "subscribe"
)

// ClientFrame is the sealed set of inbound frames a connected client may
// send. Anything else is malformed and gets dropped by the dispatcher.
type ClientFrame interface {
	clientFrame()
}

type ClientTypingStart struct {
	ConversationID string `json:"conversationId"`
	UserName       string `json:"userName"`
}

type ClientTypingStop struct {
	ConversationID string `json:"conversationId"`
}

// ClientSubscribe is an inert placeholder for selective subscriptions.
// It is accepted and ignored.
type ClientSubscribe struct{}

func (ClientTypingStart) clientFrame() {}
func (ClientTypingStop) clientFrame()  {}
func (ClientSubscribe) clientFrame()   {}

// ParseClientFrame decodes a raw inbound frame into its typed form. An
// unknown discriminator or unparseable body is an error; the caller logs
// and drops it without touching the connection.
func ParseClientFrame(raw []byte) (ClientFrame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("malformed client frame: %w", err)
	}

	switch head.Type {
	case ClientTypeTypingStart:
		var f ClientTypingStart
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("malformed typing_start frame: %w", err)
		}
		if f.ConversationID == "" {
			return nil, fmt.Errorf("typing_start frame missing conversationId")
		}
		return f, nil
	case ClientTypeTypingStop:
		var f ClientTypingStop
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("malformed typing_stop frame: %w", err)
		}
		if f.ConversationID == "" {
			return nil, fmt.Errorf("typing_stop frame missing conversationId")
		}
		return f, nil
	case ClientTypeSubscribe:
		return ClientSubscribe{}, nil
	default:
		return nil, fmt.Errorf("unknown client frame type %q", head.Type)
	}
}
