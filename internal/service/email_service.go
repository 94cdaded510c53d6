package service

import "context"

type EmailService interface {
	SendPasswordReset(ctx context.Context, to string, link string) error
	SendActivationLink(ctx context.Context, to string, link string) error
}
