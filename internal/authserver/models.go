package authserver

import "time"

// Status tracks the user's decision on a device authorization request
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// DeviceCode represents the device authorization details per RFC 8628 section 3.2
type DeviceCode struct {
	// Fields returned to the device per RFC 8628 section 3.2
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"` // Remaining time in seconds
	Interval                int    `json:"interval"`   // Poll interval in seconds

	// Server-side tracking, persisted with the code
	ExpiresAt           time.Time `json:"expires_at"`
	ClientID            string    `json:"client_id"`
	Scope               string    `json:"scope,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	Status              Status    `json:"status"`
	Subject             string    `json:"subject,omitempty"` // Set on approval
}

// DeviceRequest carries the parameters of a device authorization request
type DeviceRequest struct {
	ClientID            string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// RefreshGrant is what a stored refresh token entitles its holder to
type RefreshGrant struct {
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"subject"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenResponse represents the OAuth2 token response per RFC 6749 section 5.1
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	Scope            string `json:"scope,omitempty"`
}
