// Package authserver implements the server side of the OAuth 2.0 Device
// Authorization Grant (RFC 8628) with PKCE, for local development and tests.
package authserver

import (
	"context"
	"time"
)

// ExpiredRetention is how long device codes stay readable after expiry, so
// late polls are answered with expired_token rather than invalid_grant.
const ExpiredRetention = 5 * time.Minute

// Store defines the interface for device flow storage. Lookups of missing
// entries return nil without error.
type Store interface {
	// SaveDeviceCode stores a device code until it expires
	SaveDeviceCode(ctx context.Context, code *DeviceCode) error

	// GetDeviceCode retrieves a device code by its device code string
	GetDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error)

	// GetDeviceCodeByUserCode retrieves a device code by its user code
	GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)

	// DecideDeviceCode moves a pending device code to status. It returns the
	// updated code, or nil when the code is gone or already decided.
	DecideDeviceCode(ctx context.Context, deviceCode string, status Status, subject string) (*DeviceCode, error)

	// ConsumeDeviceCode removes a device code and its associated data. It
	// reports true to exactly one caller per code.
	ConsumeDeviceCode(ctx context.Context, code *DeviceCode) (bool, error)

	// RecordPoll stores at as the code's latest poll and returns the
	// previous one, zero if there was none
	RecordPoll(ctx context.Context, code *DeviceCode, at time.Time) (time.Time, error)

	// SaveRefreshGrant stores a refresh token until the grant expires
	SaveRefreshGrant(ctx context.Context, token string, grant *RefreshGrant) error

	// GetRefreshGrant retrieves the grant behind a refresh token
	GetRefreshGrant(ctx context.Context, token string) (*RefreshGrant, error)

	// DeleteRefreshGrant revokes a refresh token
	DeleteRefreshGrant(ctx context.Context, token string) error

	// CountAttempts returns verification attempts within the window
	CountAttempts(ctx context.Context, deviceCode string, window time.Duration) (int, error)

	// RecordAttempt records a verification attempt for rate limiting
	RecordAttempt(ctx context.Context, deviceCode string) error

	// CheckHealth verifies the storage backend is healthy
	CheckHealth(ctx context.Context) error
}
