package domain

import "time"

type User struct {
	ID                 UserID    `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email              string    `gorm:"type:text;not null;uniqueIndex:ux_users_email" db:"email" json:"email"`
	UserName           string    `gorm:"type:text;not null;uniqueIndex:ux_users_user_name" db:"user_name" json:"userName"`
	MobileNumber       string    `gorm:"type:text;not null;uniqueIndex:ux_users_mobile_number" db:"mobile_number" json:"mobileNumber"`
	FirstName          string    `gorm:"type:text;not null" db:"first_name" json:"firstName"`
	MiddleName         *string   `gorm:"type:text" db:"middle_name" json:"middleName,omitempty"`
	LastName           string    `gorm:"type:text;not null" db:"last_name" json:"lastName"`
	Password           *string   `gorm:"type:text" db:"password" json:"-"`
	ExternalIdentityID *string   `gorm:"type:text;uniqueIndex:ux_users_external_identity_id" db:"external_identity_id" json:"-"`
	IsActive           bool      `gorm:"not null;default:true" db:"is_active" json:"isActive"`
	SessionEpoch       int64     `gorm:"not null;default:0" db:"session_epoch" json:"-"`
	CreatedAt          time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// Linked reports whether the user has been bound to an external identity.
func (u *User) Linked() bool {
	return u.ExternalIdentityID != nil && *u.ExternalIdentityID != ""
}

// ExternalID returns the linked external identity id or "".
func (u *User) ExternalID() string {
	if u.ExternalIdentityID == nil {
		return ""
	}
	return *u.ExternalIdentityID
}

// ActivationToken is a single-use record backing a signed account activation link.
// Its ID is the jti carried in the signed payload.
type ActivationToken struct {
	ID        ActivationTokenID `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    UserID            `gorm:"type:uuid;not null;index" db:"user_id"`
	ExpiresAt time.Time         `gorm:"not null" db:"expires_at"`
	UsedAt    *time.Time        `db:"used_at"`
	CreatedAt time.Time         `gorm:"not null" db:"created_at"`
}

func (ActivationToken) TableName() string { return "activation_tokens" }

// Usable reports whether the token is unconsumed and unexpired at now.
func (t *ActivationToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
