package impl

import (
	"context"
	"errors"
	"strings"

	"messenger/internal/domain"
	"messenger/internal/dto"
	"messenger/internal/events"
	"messenger/internal/observability/metrics"
	"messenger/internal/service"
	"messenger/internal/store"
)

type ChatServiceImpl struct {
	Chats  chatStore
	Users  userStore
	Events service.Publisher
}

func NewChatServiceImpl(st *store.Store, pub service.Publisher) *ChatServiceImpl {
	return &ChatServiceImpl{Chats: st.Chats(), Users: st.Users(), Events: pub}
}

func (c *ChatServiceImpl) StartConversation(ctx context.Context, userID, recipientID domain.UserID) (*dto.ConversationResponse, error) {
	if userID == recipientID {
		return nil, domain.ErrSelfConversation
	}
	if _, err := c.Users.GetByID(ctx, recipientID); err != nil {
		return nil, storeErr(err)
	}
	conv, _, err := c.Chats.FindOrCreateConversation(ctx, userID, recipientID)
	if err != nil {
		return nil, storeErr(err)
	}
	last, err := c.Chats.LastMessage(ctx, conv.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	out := dto.NewConversationResponse(conv, last)
	return &out, nil
}

func (c *ChatServiceImpl) SendMessage(ctx context.Context, convID domain.ConversationID, senderID domain.UserID, content string) (*dto.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyMessage
	}
	if err := c.requireParticipant(ctx, convID, senderID); err != nil {
		return nil, err
	}
	m := &domain.Message{ConversationID: convID, SenderID: senderID, Content: content}
	if err := c.Chats.CreateMessage(ctx, m); err != nil {
		return nil, storeErr(err)
	}
	metrics.MessagesStoredTotal.Inc()

	if c.Events != nil {
		c.Events.Publish(convID.String(), events.NameMessageCreated, events.MessageCreated{
			MessageID:      m.ID.String(),
			ConversationID: convID.String(),
			SenderID:       senderID.String(),
			Content:        m.Content,
			At:             m.CreatedAt,
		})
	}
	out := dto.NewChatMessage(m)
	return &out, nil
}

func (c *ChatServiceImpl) MyConversations(ctx context.Context, userID domain.UserID) ([]dto.ConversationResponse, error) {
	convs, err := c.Chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]dto.ConversationResponse, 0, len(convs))
	for i := range convs {
		last, err := c.Chats.LastMessage(ctx, convs[i].ID)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, dto.NewConversationResponse(&convs[i], last))
	}
	return out, nil
}

func (c *ChatServiceImpl) History(ctx context.Context, convID domain.ConversationID, userID domain.UserID, limit int) ([]dto.ChatMessage, error) {
	if err := c.requireParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	msgs, err := c.Chats.History(ctx, convID, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]dto.ChatMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, dto.NewChatMessage(&msgs[i]))
	}
	return out, nil
}

func (c *ChatServiceImpl) IsParticipant(ctx context.Context, convID domain.ConversationID, userID domain.UserID) (bool, error) {
	ok, err := c.Chats.IsParticipant(ctx, convID, userID)
	if err != nil {
		return false, storeErr(err)
	}
	return ok, nil
}

func (c *ChatServiceImpl) requireParticipant(ctx context.Context, convID domain.ConversationID, userID domain.UserID) error {
	ok, err := c.Chats.IsParticipant(ctx, convID, userID)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return storeErr(err)
	}
	if ok {
		return nil
	}
	if _, err := c.Chats.GetConversation(ctx, convID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrConversationGone
		}
		return storeErr(err)
	}
	return domain.ErrConversationAccess
}
