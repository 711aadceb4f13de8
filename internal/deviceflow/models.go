package deviceflow

import (
	"encoding/json"
	"time"
)

// DeviceAuthorizationResponse is the device endpoint reply per RFC 8628 section 3.2
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code,omitempty"`
	VerificationURI         string `json:"verification_uri,omitempty"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in,omitempty"`
	Interval                int    `json:"interval,omitempty"` // Informational, polling uses Config.PollInterval
}

// displayURI returns the URL shown to the user, preferring the complete form
func (r *DeviceAuthorizationResponse) displayURI() string {
	if r.VerificationURIComplete != "" {
		return r.VerificationURIComplete
	}
	return r.VerificationURI
}

// TokenResponse is the token set returned by the token endpoint.
// Raw keeps every member of the JSON object, including fields the
// struct does not name.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	IDToken          string `json:"id_token,omitempty"`
	Scope            string `json:"scope,omitempty"`

	// ReceivedAt is stamped by the client when the response arrives
	ReceivedAt time.Time `json:"received_at"`

	Raw map[string]any `json:"-"`
}

const receivedAtField = "received_at"

// MarshalJSON writes Raw with the named fields on top, so members the
// struct does not name survive a save and load
func (t TokenResponse) MarshalJSON() ([]byte, error) {
	type plain TokenResponse
	named, err := json.Marshal(plain(t))
	if err != nil {
		return nil, err
	}
	if len(t.Raw) == 0 {
		return named, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(named, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(t.Raw)+len(fields))
	for k, v := range t.Raw {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and keeps the server's members in
// Raw
func (t *TokenResponse) UnmarshalJSON(data []byte) error {
	type plain TokenResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, receivedAtField)

	*t = TokenResponse(p)
	t.Raw = raw
	return nil
}

// AccessExpiry returns when the access token expires, or zero if unknown
func (t *TokenResponse) AccessExpiry() time.Time {
	return t.expiry(t.ExpiresIn)
}

// RefreshExpiry returns when the refresh token expires, or zero if unknown
func (t *TokenResponse) RefreshExpiry() time.Time {
	return t.expiry(t.RefreshExpiresIn)
}

func (t *TokenResponse) expiry(seconds int) time.Time {
	if seconds <= 0 || t.ReceivedAt.IsZero() {
		return time.Time{}
	}
	return t.ReceivedAt.Add(time.Duration(seconds) * time.Second)
}
