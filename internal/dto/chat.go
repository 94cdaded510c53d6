package dto

import (
	"time"

	"messenger/internal/domain"
)

type StartConversationRequest struct {
	RecipientID string `json:"recipientId"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type ChatMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"createdAt"`
	Sender         *UserResponse `json:"sender,omitempty"`
}

type ConversationResponse struct {
	ID           string         `json:"id"`
	Participants []UserResponse `json:"participants"`
	LastMessage  *ChatMessage   `json:"lastMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func NewChatMessage(m *domain.Message) ChatMessage {
	out := ChatMessage{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID.String(),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
	if m.Sender != nil {
		s := NewUserResponse(m.Sender)
		out.Sender = &s
	}
	return out
}

func NewConversationResponse(c *domain.Conversation, last *domain.Message) ConversationResponse {
	out := ConversationResponse{ID: c.ID.String(), CreatedAt: c.CreatedAt, Participants: []UserResponse{}}
	for _, p := range c.Participants {
		if p.User != nil {
			out.Participants = append(out.Participants, NewUserResponse(p.User))
		}
	}
	if last != nil {
		m := NewChatMessage(last)
		out.LastMessage = &m
	}
	return out
}
