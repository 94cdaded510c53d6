// Package idp is the credential bridge to the external identity provider.
package idp

import (
	"context"
	"errors"
	"fmt"
)

// SessionEpochClaim is the custom claim carrying the user's session epoch.
const SessionEpochClaim = "session_epoch"

type Code string

const (
	CodeAlreadyExists      Code = "already_exists"
	CodeNotFound           Code = "not_found"
	CodeInvalidToken       Code = "invalid_token"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeUserDisabled       Code = "user_disabled"
	CodeUnavailable        Code = "unavailable"
)

// Error is the only error type a Bridge returns.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("idp %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("idp %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(op string, code Code, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func CodeOf(err error) Code {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return CodeUnavailable
}

func IsNotFound(err error) bool           { return err != nil && CodeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool      { return err != nil && CodeOf(err) == CodeAlreadyExists }
func IsUserDisabled(err error) bool       { return err != nil && CodeOf(err) == CodeUserDisabled }
func IsInvalidCredentials(err error) bool { return err != nil && CodeOf(err) == CodeInvalidCredentials }
func IsInvalidToken(err error) bool       { return err != nil && CodeOf(err) == CodeInvalidToken }

type Identity struct {
	ID       string
	Email    string
	Disabled bool
}

type SignInResult struct {
	IdentityID   string
	BearerToken  string
	RefreshToken string
}

// VerifiedCredential is what a bearer token proves once verified.
type VerifiedCredential struct {
	IdentityID string
	ClaimEpoch int64
	HasClaim   bool
}

type Page struct {
	Identities []Identity
	NextCursor string
}

// Bridge is the full set of operations performed against the identity provider.
type Bridge interface {
	CreateIdentity(ctx context.Context, email, secret string) (string, error)
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	GetIdentityByID(ctx context.Context, id string) (*Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
	SetSessionClaim(ctx context.Context, id string, epoch int64) error
	DisableIdentity(ctx context.Context, id string) error
	EnableIdentity(ctx context.Context, id string) error
	UpdateSecret(ctx context.Context, id, secret string) error
	VerifyBearerCredential(ctx context.Context, token string) (*VerifiedCredential, error)
	SignInWithSecret(ctx context.Context, email, secret string) (*SignInResult, error)
	RefreshBearerCredential(ctx context.Context, refreshToken string) (string, error)
	GeneratePasswordResetLink(ctx context.Context, email string) (string, error)
	ListIdentities(ctx context.Context, pageSize int, cursor string) (*Page, error)
}
