package authserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSigningKeyLength is the shortest HS256 key accepted
const MinSigningKeyLength = 32

// ErrWeakSigningKey is returned for signing keys shorter than MinSigningKeyLength
var ErrWeakSigningKey = errors.New("signing key must be at least 32 bytes")

// AccessClaims are the claims carried by issued access tokens
type AccessClaims struct {
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"azp"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 access tokens and sets token lifetimes
type TokenIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates an issuer. The issuer string becomes the iss claim.
func NewTokenIssuer(key []byte, issuer string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if len(key) < MinSigningKeyLength {
		return nil, ErrWeakSigningKey
	}
	if accessTTL <= 0 {
		return nil, errors.New("access token lifetime must be positive")
	}
	if refreshTTL <= 0 {
		return nil, errors.New("refresh token lifetime must be positive")
	}
	return &TokenIssuer{
		key:        key,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the access token lifetime
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL returns the refresh token lifetime
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// Sign issues an access token for subject acting through clientID
func (t *TokenIssuer) Sign(clientID, subject, scope string, now time.Time) (string, error) {
	claims := AccessClaims{
		Scope:    scope,
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Parse validates an access token issued by t and returns its claims
func (t *TokenIssuer) Parse(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}
	return claims, nil
}
