package domain

import "time"

// Message is the persisted-message shape pushed to clients in new_message
// frames. Persistence is owned by the messaging service; the gateway only
// relays what it is handed.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}
