package service

import (
	"context"

	"messenger/internal/domain"
	"messenger/internal/dto"
)

type IdentityService interface {
	Register(ctx context.Context, r dto.RegisterRequest) (*dto.UserResponse, error)
	Login(ctx context.Context, r dto.LoginRequest) (*dto.LoginResponse, error)
	Logout(ctx context.Context, userID domain.UserID) error
	UpdateProfile(ctx context.Context, userID domain.UserID, r dto.UpdateProfileRequest) (*dto.UserResponse, error)
	UpdatePassword(ctx context.Context, userID domain.UserID, r dto.UpdatePasswordRequest) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	DisableAccount(ctx context.Context, userID domain.UserID) error
	ListUsers(ctx context.Context, limit, offset int) ([]dto.UserResponse, error)
	Me(ctx context.Context, userID domain.UserID) (*dto.UserResponse, error)
}
