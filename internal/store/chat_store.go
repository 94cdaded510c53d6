package store

import (
	"context"
	"errors"
	"time"

	"messenger/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatStore struct{ db *gorm.DB }

func (s *Store) Chats() *ChatStore { return &ChatStore{s.DB} }

// FindOrCreateConversation returns the conversation between a and b, creating it with both
// participants when absent. A concurrent insert losing on the pair_key index re-reads the winner.
func (cs *ChatStore) FindOrCreateConversation(ctx context.Context, a, b domain.UserID) (*domain.Conversation, bool, error) {
	key := domain.PairKey(a, b)
	if conv, err := cs.byPairKey(ctx, key); err == nil {
		return conv, false, nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, false, err
	}

	conv := &domain.Conversation{
		ID:        uuid.New(),
		PairKey:   key,
		CreatedAt: time.Now().UTC(),
	}
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(conv).Error; err != nil {
			return err
		}
		parts := []domain.Participant{
			{ID: uuid.New(), ConversationID: conv.ID, UserID: a},
			{ID: uuid.New(), ConversationID: conv.ID, UserID: b},
		}
		return tx.Omit("User").Create(&parts).Error
	})
	if err != nil {
		if errors.Is(translate(err), ErrDuplicateKey) {
			existing, rerr := cs.byPairKey(ctx, key)
			return existing, false, rerr
		}
		return nil, false, translate(err)
	}
	created, err := cs.byPairKey(ctx, key)
	return created, true, err
}

func (cs *ChatStore) GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := cs.db.WithContext(ctx).
		Preload("Participants.User").
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

func (cs *ChatStore) IsParticipant(ctx context.Context, convID domain.ConversationID, userID domain.UserID) (bool, error) {
	var count int64
	err := cs.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (cs *ChatStore) CreateMessage(ctx context.Context, m *domain.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return translate(cs.db.WithContext(ctx).Omit("Sender").Create(m).Error)
}

// ListForUser returns the user's conversations with participants loaded, newest first.
func (cs *ChatStore) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	sub := cs.db.Model(&domain.Participant{}).Select("conversation_id").Where("user_id = ?", userID)
	err := cs.db.WithContext(ctx).
		Preload("Participants.User").
		Where("id IN (?)", sub).
		Order("created_at desc").
		Find(&convs).Error
	if err != nil {
		return nil, translate(err)
	}
	return convs, nil
}

// LastMessage returns the most recent message of a conversation, or nil when it has none.
func (cs *ChatStore) LastMessage(ctx context.Context, convID domain.ConversationID) (*domain.Message, error) {
	var m domain.Message
	err := cs.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at desc").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// History returns up to limit of the latest messages in chronological order.
func (cs *ChatStore) History(ctx context.Context, convID domain.ConversationID, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	err := cs.db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ?", convID).
		Order("created_at desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (cs *ChatStore) byPairKey(ctx context.Context, key string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := cs.db.WithContext(ctx).
		Preload("Participants.User").
		Where("pair_key = ?", key).
		First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}
