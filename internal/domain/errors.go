package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindUpstream     ErrorKind = "upstream"
	KindInternal     ErrorKind = "internal"
)

// Error is the single structured error surfaced to callers: a kind plus a
// message that is safe to show to a client.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Upstream wraps a dependency failure (IdP or store) without hiding the cause.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	ErrMissingFields      = NewError(KindValidation, "Missing required fields")
	ErrPasswordLength     = NewError(KindValidation, "Password must be at least 8 characters")
	ErrPasswordMismatch   = NewError(KindValidation, "Passwords do not match")
	ErrUserExists         = NewError(KindConflict, "User already exists with this email, username, or phone")
	ErrProfileConflict    = NewError(KindConflict, "Username or mobile number already in use")
	ErrInvalidCredentials = NewError(KindUnauthorized, "Invalid credentials")
	ErrAccountDisabled    = NewError(KindUnauthorized, "Account is disabled")
	ErrNotRegistered      = NewError(KindUnauthorized, "User not found. Please register first.")
	ErrInvalidSession     = NewError(KindUnauthorized, "Invalid or expired session")
	ErrMissingToken       = NewError(KindUnauthorized, "Missing Bearer token")
	ErrIdentityMismatch   = NewError(KindUnauthorized, "External identity mismatch")
	ErrNotLinked          = NewError(KindUnauthorized, "Account is not linked to an external identity")
	ErrWrongPassword      = NewError(KindUnauthorized, "Current password is incorrect")
	ErrInvalidAdminKey    = NewError(KindUnauthorized, "Invalid admin key")
	ErrMissingActivation  = NewError(KindValidation, "Missing activation token")
	ErrInvalidActivation  = NewError(KindUnauthorized, "Invalid or expired activation token")
	ErrUserNotFound       = NewError(KindNotFound, "User not found")
	ErrSelfConversation   = NewError(KindValidation, "You cannot start a conversation with yourself.")
	ErrEmptyMessage       = NewError(KindValidation, "Message content is required")
	ErrConversationAccess = NewError(KindForbidden, "Not a participant of this conversation")
	ErrConversationGone   = NewError(KindNotFound, "Conversation not found")
)
