package store

import (
	"context"
	"time"

	"messenger/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ActivationTokenStore struct{ db *gorm.DB }

func (s *Store) ActivationTokens() *ActivationTokenStore { return &ActivationTokenStore{s.DB} }

func (as *ActivationTokenStore) Create(ctx context.Context, t *domain.ActivationToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return translate(as.db.WithContext(ctx).Create(t).Error)
}

func (as *ActivationTokenStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ActivationToken, error) {
	var t domain.ActivationToken
	if err := as.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

// Consume marks the token used. Only one caller can win: a token that is already
// used (or missing) yields ErrConflict.
func (as *ActivationTokenStore) Consume(ctx context.Context, id uuid.UUID, at time.Time) error {
	tx := as.db.WithContext(ctx).
		Model(&domain.ActivationToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if tx.Error != nil {
		return translate(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteExpired removes tokens that expired before the given time, used or not.
// A missing row fails redemption the same way an expired one does.
func (as *ActivationTokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tx := as.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&domain.ActivationToken{})
	return tx.RowsAffected, translate(tx.Error)
}
