package store

import (
	"context"
	"errors"

	"messenger/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	// Select("*") keeps an explicit is_active=false from being replaced by the column default.
	return translate(u.db.WithContext(ctx).Select("*").Create(usr).Error)
}

func (u *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return u.first(ctx, "id = ?", id)
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return u.first(ctx, "email = ?", email)
}

func (u *UserStore) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return u.first(ctx, "external_identity_id = ?", externalID)
}

// FindConflicting returns any user already holding one of the unique contact fields.
func (u *UserStore) FindConflicting(ctx context.Context, email, userName, mobile string) (*domain.User, error) {
	var user domain.User
	err := u.db.WithContext(ctx).
		Where("email = ? OR user_name = ? OR mobile_number = ?", email, userName, mobile).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// LinkExternalIdentity sets external_identity_id only while it is still NULL.
// ErrConflict means the row is already linked (or gone).
func (u *UserStore) LinkExternalIdentity(ctx context.Context, id uuid.UUID, externalID string) error {
	tx := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND external_identity_id IS NULL", id).
		Update("external_identity_id", externalID)
	if tx.Error != nil {
		return translate(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// BumpEpoch increments session_epoch in SQL and returns the value it now holds.
func (u *UserStore) BumpEpoch(ctx context.Context, id uuid.UUID) (int64, error) {
	return u.updateWithEpoch(ctx, id, map[string]any{})
}

// SetActive flips is_active and bumps session_epoch in the same statement.
func (u *UserStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	return u.updateWithEpoch(ctx, id, map[string]any{"is_active": active})
}

func (u *UserStore) updateWithEpoch(ctx context.Context, id uuid.UUID, fields map[string]any) (int64, error) {
	var epoch int64
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields["session_epoch"] = gorm.Expr("session_epoch + ?", 1)
		res := tx.Model(&domain.User{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&domain.User{}).Select("session_epoch").Where("id = ?", id).Scan(&epoch).Error
	})
	if err != nil {
		return 0, translate(err)
	}
	return epoch, nil
}

func (u *UserStore) ClearPassword(ctx context.Context, id uuid.UUID) error {
	res := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Update("password", nil)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// UpdateProfile writes the given columns; unique violations surface as ErrDuplicateKey.
func (u *UserStore) UpdateProfile(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := u.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// EachActiveLinked walks active users with an external link in primary-key batches.
func (u *UserStore) EachActiveLinked(ctx context.Context, batchSize int, fn func([]domain.User) error) error {
	var batch []domain.User
	res := u.db.WithContext(ctx).
		Where("is_active = ? AND external_identity_id IS NOT NULL", true).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return translate(res.Error)
}

func (u *UserStore) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var count int64
	err := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("external_identity_id = ?", externalID).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (u *UserStore) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	var users []domain.User
	q := u.db.WithContext(ctx).Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

func (u *UserStore) first(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}
