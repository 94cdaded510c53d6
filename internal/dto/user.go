package dto

import (
	"time"

	"messenger/internal/domain"
)

type RegisterRequest struct {
	Email           string  `json:"email"`
	FirstName       string  `json:"firstName"`
	MiddleName      *string `json:"middleName,omitempty"`
	LastName        string  `json:"lastName"`
	UserName        string  `json:"userName"`
	MobileNumber    string  `json:"mobileNumber"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirmPassword"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         UserResponse `json:"user"`
}

type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	UserName     string    `json:"userName"`
	MobileNumber string    `json:"mobileNumber"`
	FirstName    string    `json:"firstName"`
	MiddleName   *string   `json:"middleName,omitempty"`
	LastName     string    `json:"lastName"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:           u.ID.String(),
		Email:        u.Email,
		UserName:     u.UserName,
		MobileNumber: u.MobileNumber,
		FirstName:    u.FirstName,
		MiddleName:   u.MiddleName,
		LastName:     u.LastName,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
	}
}

// UpdateProfileRequest carries only the fields to change.
type UpdateProfileRequest struct {
	FirstName    *string `json:"firstName,omitempty"`
	MiddleName   *string `json:"middleName,omitempty"`
	LastName     *string `json:"lastName,omitempty"`
	UserName     *string `json:"userName,omitempty"`
	MobileNumber *string `json:"mobileNumber,omitempty"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ActivationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
}
