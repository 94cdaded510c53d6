package impl

import (
	"context"

	obsmw "messenger/internal/observability/middleware"
)

// LogEmailService hands links to the structured log instead of a mail relay.
type LogEmailService struct{}

func NewLogEmailService() *LogEmailService { return &LogEmailService{} }

func (LogEmailService) SendPasswordReset(ctx context.Context, to string, link string) error {
	obsmw.Logger(ctx).Info("password reset link issued", "to", to, "link", link)
	return nil
}

func (LogEmailService) SendActivationLink(ctx context.Context, to string, link string) error {
	obsmw.Logger(ctx).Info("activation link issued", "to", to, "link", link)
	return nil
}
