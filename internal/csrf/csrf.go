// Package csrf protects the verification form against cross-site request
// forgery with signed, single-use tokens.
package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates a missing, forged or already used token
	ErrInvalidToken = errors.New("invalid csrf token")

	// ErrTokenExpired indicates the token outlived its lifetime
	ErrTokenExpired = errors.New("csrf token expired")
)

// Store remembers issued tokens until they are used or expire
type Store interface {
	// SaveToken stores a token with expiry
	SaveToken(ctx context.Context, token string, expiresIn time.Duration) error

	// ConsumeToken removes a token, failing when it is unknown or expired
	ConsumeToken(ctx context.Context, token string) error

	// CheckHealth verifies the store is operational
	CheckHealth(ctx context.Context) error
}

// Manager handles token generation and validation
type Manager struct {
	store     Store
	secret    []byte
	expiresIn time.Duration
}

// NewManager creates a token manager signing with secret
func NewManager(store Store, secret []byte, expiresIn time.Duration) *Manager {
	return &Manager{
		store:     store,
		secret:    secret,
		expiresIn: expiresIn,
	}
}

// GenerateToken creates and stores a new token of the form nonce.signature
func (m *Manager) GenerateToken(ctx context.Context) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(nonce)
	token := encoded + "." + base64.RawURLEncoding.EncodeToString(m.sign(encoded))

	if err := m.store.SaveToken(ctx, token, m.expiresIn); err != nil {
		return "", fmt.Errorf("saving token: %w", err)
	}

	return token, nil
}

// ValidateToken checks the signature and consumes the token. A token
// validates at most once.
func (m *Manager) ValidateToken(ctx context.Context, token string) error {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return ErrInvalidToken
	}

	actual, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return ErrInvalidToken
	}
	if !hmac.Equal(m.sign(nonce), actual) {
		return ErrInvalidToken
	}

	if err := m.store.ConsumeToken(ctx, token); err != nil {
		return fmt.Errorf("validating token: %w", err)
	}

	return nil
}

// CheckHealth verifies the token store is operational
func (m *Manager) CheckHealth(ctx context.Context) error {
	if err := m.store.CheckHealth(ctx); err != nil {
		return fmt.Errorf("csrf store health check failed: %w", err)
	}
	return nil
}

func (m *Manager) sign(nonce string) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(nonce))
	return h.Sum(nil)
}
