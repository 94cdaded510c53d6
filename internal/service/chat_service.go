package service

import (
	"context"

	"messenger/internal/domain"
	"messenger/internal/dto"
)

type ChatService interface {
	StartConversation(ctx context.Context, userID domain.UserID, recipientID domain.UserID) (*dto.ConversationResponse, error)
	SendMessage(ctx context.Context, convID domain.ConversationID, senderID domain.UserID, content string) (*dto.ChatMessage, error)
	MyConversations(ctx context.Context, userID domain.UserID) ([]dto.ConversationResponse, error)
	History(ctx context.Context, convID domain.ConversationID, userID domain.UserID, limit int) ([]dto.ChatMessage, error)
	IsParticipant(ctx context.Context, convID domain.ConversationID, userID domain.UserID) (bool, error)
}

// Publisher delivers an event to every connection subscribed to room.
type Publisher interface {
	Publish(room, event string, payload any)
}
