package authserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/pkce"
)

// Grant types accepted at the token endpoint
const (
	GrantTypeDeviceCode   = "urn:ietf:params:oauth:grant-type:device_code"
	GrantTypeRefreshToken = "refresh_token"

	refreshTokenBytes = 32
	outcomeIssued     = "issued"
)

// ExchangeDeviceCode answers a device access token request per RFC 8628
// section 3.4. Approved codes are consumed on success.
func (f *Flow) ExchangeDeviceCode(ctx context.Context, clientID, deviceCode, verifier string) (*TokenResponse, error) {
	token, err := f.exchangeDeviceCode(ctx, clientID, deviceCode, verifier)
	f.observer.TokenPolled(GrantTypeDeviceCode, outcome(err))
	return token, err
}

func (f *Flow) exchangeDeviceCode(ctx context.Context, clientID, deviceCode, verifier string) (*TokenResponse, error) {
	if deviceCode == "" {
		return nil, NewError(ErrorCodeInvalidRequest, "device_code is required")
	}

	code, err := f.GetDeviceCode(ctx, deviceCode)
	if err != nil {
		return nil, err
	}

	if code.ClientID != clientID {
		return nil, NewError(ErrorCodeInvalidGrant, "device code was issued to another client")
	}

	if f.enforceInterval {
		now := time.Now()
		last, err := f.store.RecordPoll(ctx, code, now)
		if err != nil {
			return nil, fmt.Errorf("recording poll: %w", err)
		}
		if !last.IsZero() && now.Sub(last) < f.pollInterval {
			return nil, ErrSlowDown
		}
	}

	switch code.Status {
	case StatusPending:
		return nil, ErrAuthorizationPending
	case StatusDenied:
		if _, err := f.store.ConsumeDeviceCode(ctx, code); err != nil {
			return nil, fmt.Errorf("deleting denied code: %w", err)
		}
		return nil, NewError(ErrorCodeAccessDenied, "the user denied the request")
	}

	if code.CodeChallenge != "" {
		if verifier == "" {
			return nil, NewError(ErrorCodeInvalidGrant, "code_verifier is required")
		}
		if !pkce.Verify(code.CodeChallenge, verifier) {
			return nil, NewError(ErrorCodeInvalidGrant, "code_verifier does not match code_challenge")
		}
	}

	consumed, err := f.store.ConsumeDeviceCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("consuming device code: %w", err)
	}
	if !consumed {
		return nil, NewError(ErrorCodeInvalidGrant, "device code has already been redeemed")
	}

	token, err := f.issueTokens(ctx, code.ClientID, code.Subject, code.Scope)
	if err != nil {
		return nil, err
	}

	f.logger.WithFields(log.Fields{
		"client_id": code.ClientID,
		"subject":   code.Subject,
	}).Info("Device authorization completed")

	return token, nil
}

// Refresh exchanges a refresh token for a new token set. The presented
// refresh token is revoked.
func (f *Flow) Refresh(ctx context.Context, clientID, refreshToken string) (*TokenResponse, error) {
	token, err := f.refresh(ctx, clientID, refreshToken)
	f.observer.TokenPolled(GrantTypeRefreshToken, outcome(err))
	return token, err
}

func (f *Flow) refresh(ctx context.Context, clientID, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, NewError(ErrorCodeInvalidRequest, "refresh_token is required")
	}

	grant, err := f.store.GetRefreshGrant(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("getting refresh grant: %w", err)
	}
	if grant == nil || time.Now().After(grant.ExpiresAt) {
		return nil, NewError(ErrorCodeInvalidGrant, "refresh token is invalid or expired")
	}
	if grant.ClientID != clientID {
		return nil, NewError(ErrorCodeInvalidGrant, "refresh token was issued to another client")
	}

	if err := f.store.DeleteRefreshGrant(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("revoking refresh token: %w", err)
	}

	return f.issueTokens(ctx, grant.ClientID, grant.Subject, grant.Scope)
}

func (f *Flow) issueTokens(ctx context.Context, clientID, subject, scope string) (*TokenResponse, error) {
	now := time.Now()

	access, err := f.tokens.Sign(clientID, subject, scope, now)
	if err != nil {
		return nil, err
	}

	refresh, err := generateSecureCode(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	grant := &RefreshGrant{
		ClientID:  clientID,
		Subject:   subject,
		Scope:     scope,
		ExpiresAt: now.Add(f.tokens.RefreshTTL()),
	}
	if err := f.store.SaveRefreshGrant(ctx, refresh, grant); err != nil {
		return nil, fmt.Errorf("saving refresh grant: %w", err)
	}

	return &TokenResponse{
		AccessToken:      access,
		TokenType:        "Bearer",
		ExpiresIn:        int(f.tokens.AccessTTL().Seconds()),
		RefreshToken:     refresh,
		RefreshExpiresIn: int(f.tokens.RefreshTTL().Seconds()),
		Scope:            scope,
	}, nil
}

func outcome(err error) string {
	if err == nil {
		return outcomeIssued
	}
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr.Code
	}
	return ErrorCodeServerError
}
