package service

import (
	"context"

	"messenger/internal/dto"
)

type SyncService interface {
	SyncUser(ctx context.Context, uidOrEmail, adminKey string) (*dto.SyncUserResponse, error)
	ReconcileLocalToExternal(ctx context.Context) (dto.SweepReport, error)
	ReconcileExternalToLocal(ctx context.Context) (dto.SweepReport, error)
	// RunSweep runs both directions on demand after checking the admin key.
	RunSweep(ctx context.Context, adminKey string) ([]dto.SweepReport, error)
}
