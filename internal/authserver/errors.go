package authserver

import (
	"errors"
	"fmt"
)

// OAuth error codes per RFC 6749 section 5.2 and RFC 8628 section 3.5
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrant     = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeExpiredToken         = "expired_token"
	ErrorCodeServerError          = "server_error"
)

// Error is an OAuth protocol error that handlers return to the client as-is.
// Errors compare equal under errors.Is when their codes match.
type Error struct {
	Code        string
	Description string
}

// NewError creates a protocol error
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches any *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks
var (
	ErrAuthorizationPending = &Error{Code: ErrorCodeAuthorizationPending}
	ErrSlowDown             = &Error{Code: ErrorCodeSlowDown}
	ErrAccessDenied         = &Error{Code: ErrorCodeAccessDenied}
	ErrExpiredToken         = &Error{Code: ErrorCodeExpiredToken}
	ErrInvalidGrant         = &Error{Code: ErrorCodeInvalidGrant}
	ErrInvalidRequest       = &Error{Code: ErrorCodeInvalidRequest}
)

// ErrStoreUnhealthy indicates the backing store is not reachable
var ErrStoreUnhealthy = errors.New("store unhealthy")
