package deviceflow

import (
	"errors"
	"fmt"
)

// OAuth error codes the client recognises in token endpoint replies
const (
	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeExpiredToken         = "expired_token"
	ErrorCodeInvalidGrant         = "invalid_grant"
)

// Configuration errors returned by NewClient
var (
	ErrMissingTokenEndpoint  = errors.New("token endpoint is required")
	ErrMissingDeviceEndpoint = errors.New("device endpoint is required")
	ErrMissingClientID       = errors.New("client ID is required")
)

// DeviceAuthorizationError reports a failed device authorization request.
// StatusCode is zero when no HTTP response was received.
type DeviceAuthorizationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeviceAuthorizationError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("device authorization failed with status %d: %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("device authorization failed: %v", e.Err)
	default:
		return fmt.Sprintf("device authorization failed with status %d: %s", e.StatusCode, e.Body)
	}
}

func (e *DeviceAuthorizationError) Unwrap() error {
	return e.Err
}

// TokenExchangeError reports a terminal failure while polling the token endpoint.
// Code holds the OAuth error code when the server sent one.
type TokenExchangeError struct {
	StatusCode  int
	Code        string
	Description string
	Body        string
	Err         error
}

func (e *TokenExchangeError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token exchange failed with status %d: %s (%s)", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Code)
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("token exchange failed with status %d: %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	default:
		return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
	}
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}
