package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// OAuth2Token converts the token set for use with golang.org/x/oauth2
func (t *TokenResponse) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.AccessExpiry(),
	}
	if t.Raw != nil {
		return tok.WithExtra(t.Raw)
	}
	return tok
}

// fromOAuth2Token converts a refreshed oauth2 token back into a TokenResponse
func fromOAuth2Token(tok *oauth2.Token) *TokenResponse {
	now := time.Now()
	t := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ReceivedAt:   now,
		Raw: map[string]any{
			"access_token": tok.AccessToken,
			"token_type":   tok.TokenType,
		},
	}
	if tok.RefreshToken != "" {
		t.Raw["refresh_token"] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		t.ExpiresIn = int(tok.Expiry.Sub(now).Round(time.Second).Seconds())
		t.Raw["expires_in"] = t.ExpiresIn
	}
	if v, ok := tok.Extra("scope").(string); ok {
		t.Scope = v
		t.Raw["scope"] = v
	}
	if v, ok := tok.Extra("id_token").(string); ok {
		t.IDToken = v
		t.Raw["id_token"] = v
	}
	if v, ok := tok.Extra("refresh_expires_in").(float64); ok {
		t.RefreshExpiresIn = int(v)
		t.Raw["refresh_expires_in"] = t.RefreshExpiresIn
	}
	return t
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.cfg.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: strings.Fields(c.cfg.Scope),
	}
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// TokenSource returns a source that refreshes the token set through the
// token endpoint once the access token expires.
func (c *Client) TokenSource(ctx context.Context, token *TokenResponse) oauth2.TokenSource {
	return c.oauthConfig().TokenSource(c.oauthContext(ctx), token.OAuth2Token())
}

// Refresh exchanges a refresh token for a new token set
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}

	src := c.oauthConfig().TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			exchangeErr := &TokenExchangeError{
				Code:        re.ErrorCode,
				Description: re.ErrorDescription,
				Body:        string(re.Body),
				Err:         err,
			}
			if re.Response != nil {
				exchangeErr.StatusCode = re.Response.StatusCode
			}
			return nil, exchangeErr
		}
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	return fromOAuth2Token(tok), nil
}
