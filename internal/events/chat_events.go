package events

import "time"

// Event names as seen by websocket clients.
const (
	NameMessageCreated = "onMessage"
	NameSessionRevoked = "sessionRevoked"
)

type MessageCreated struct {
	MessageID      string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	At             time.Time `json:"createdAt"`
}
