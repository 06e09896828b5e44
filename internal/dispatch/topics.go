package dispatch

import "github.com/fitlink/realtime-gateway/internal/domain"

// Bus topics the dispatcher subscribes to. Collaborators (the message
// persistence service, the badge counter) publish here after a
// successful write; the dispatcher fans the event out to live
// connections. Delivery is liveness notification only, never queued.
const (
	TopicMessagePersisted = "messages.persisted"
	TopicMessageRead      = "messages.read"
	TopicReactionUpdated  = "reactions.updated"
	TopicBadgeInvalidate  = "badges.invalidate"
)

type newMessageEnvelope struct {
	ConversationID  string         `json:"conversationId"`
	Message         domain.Message `json:"message"`
	ParticipantIDs  []string       `json:"participantIds"`
	ExcludeSenderID string         `json:"excludeSenderId,omitempty"`
}

type messageReadEnvelope struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	ReaderID       string `json:"readerId"`
	TargetUserID   string `json:"targetUserId"`
}

type reactionEnvelope struct {
	MessageID     string   `json:"messageId"`
	Reaction      string   `json:"reaction"`
	ActingUserID  string   `json:"actingUserId"`
	NotifyUserIDs []string `json:"notifyUserIds"`
	Added         bool     `json:"added"`
}

type badgeEnvelope struct {
	UserIDs []string `json:"userIds"`
}
