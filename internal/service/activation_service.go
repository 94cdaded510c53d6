package service

import (
	"context"

	"messenger/internal/dto"
)

type ActivationService interface {
	RequestEnableAccount(ctx context.Context, email string) (string, error)
	EnableAccountWithToken(ctx context.Context, token string) (*dto.ActivationResponse, error)
}
