// Package tokenstore persists token sets obtained through the device flow
package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/wrale/oauth2-device-login/internal/deviceflow"
)

// ErrNotFound is returned when no token set is stored under a key
var ErrNotFound = errors.New("token not found")

// Store defines the interface for token persistence
type Store interface {
	// Save stores a token set under key, replacing any previous value
	Save(ctx context.Context, key string, token *deviceflow.TokenResponse) error

	// Load retrieves the token set stored under key
	Load(ctx context.Context, key string) (*deviceflow.TokenResponse, error)

	// Delete removes the token set stored under key
	Delete(ctx context.Context, key string) error

	// CheckHealth verifies the storage backend is healthy
	CheckHealth(ctx context.Context) error
}

// ttlFor returns how long a token set stays useful: until the refresh token
// expires, otherwise until the access token expires. Zero means no expiry.
func ttlFor(token *deviceflow.TokenResponse, now time.Time) time.Duration {
	if exp := token.RefreshExpiry(); !exp.IsZero() {
		return exp.Sub(now)
	}
	if token.RefreshToken != "" {
		return 0
	}
	if exp := token.AccessExpiry(); !exp.IsZero() {
		return exp.Sub(now)
	}
	return 0
}
