// Package deviceflow implements the client side of the OAuth 2.0 Device
// Authorization Grant (RFC 8628) with PKCE (RFC 7636).
package deviceflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/pkce"
	"github.com/wrale/oauth2-device-login/internal/redirect"
)

const (
	// DefaultPollInterval is used when Config.PollInterval is not positive
	DefaultPollInterval = 5 * time.Second

	// GrantTypeDeviceCode is the grant type sent when polling the token endpoint
	GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

	defaultTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
)

// Config describes the authorization server and the client registration
type Config struct {
	TokenEndpoint  string
	DeviceEndpoint string
	ClientID       string

	// Scope defaults to ClientID when empty
	Scope string

	// HostHeader overrides the Host header on every request when set
	HostHeader string

	PollInterval time.Duration

	// Rewrites apply to the displayed verification URL only
	Rewrites Rewrites
}

// Client runs device authorization attempts. It holds no per-attempt state,
// so one Client may serve concurrent Authenticate calls.
type Client struct {
	cfg        Config
	baseHTTP   *http.Client
	httpClient *http.Client
	display    redirect.Handler
	logger     log.FieldLogger
	observer   StateObserver

	// sleep waits between polls; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient validates cfg and builds a client
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.TokenEndpoint = strings.TrimSpace(cfg.TokenEndpoint)
	cfg.DeviceEndpoint = strings.TrimSpace(cfg.DeviceEndpoint)

	if cfg.TokenEndpoint == "" {
		return nil, ErrMissingTokenEndpoint
	}
	if cfg.DeviceEndpoint == "" {
		return nil, ErrMissingDeviceEndpoint
	}
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	for _, endpoint := range []string{cfg.TokenEndpoint, cfg.DeviceEndpoint} {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		if !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("invalid endpoint %q: must be an absolute URL", endpoint)
		}
	}

	if cfg.Scope == "" {
		cfg.Scope = cfg.ClientID
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	c := &Client{
		cfg:    cfg,
		logger: log.StandardLogger(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.baseHTTP == nil {
		c.baseHTTP = &http.Client{Timeout: defaultTimeout}
	}
	c.httpClient = newHTTPClient(c.baseHTTP, cfg.HostHeader)

	if c.display == nil {
		c.display = redirect.Console(os.Stdout, nil)
	}

	return c, nil
}

// Config returns the resolved configuration
func (c *Client) Config() Config {
	return c.cfg
}

// Authenticate performs one complete device authorization exchange. It blocks
// until the user approves, the server reports a terminal error, or ctx is done.
// There is no built-in deadline.
func (c *Client) Authenticate(ctx context.Context) (*TokenResponse, error) {
	c.enter(StateInit)

	pair, err := pkce.New()
	if err != nil {
		c.enter(StateFailed)
		return nil, fmt.Errorf("generating pkce verifier: %w", err)
	}

	device, err := c.requestDeviceCode(ctx, pair.Challenge)
	if err != nil {
		c.enter(StateFailed)
		return nil, err
	}
	c.enter(StateDeviceCodeRequested)

	displayURL := c.cfg.Rewrites.Apply(device.displayURI())
	if err := c.display.Redirect(ctx, displayURL); err != nil {
		c.enter(StateFailed)
		return nil, fmt.Errorf("displaying verification URL: %w", err)
	}

	token, err := c.pollToken(ctx, device.DeviceCode, pair.Verifier)
	if err != nil {
		c.enter(StateFailed)
		return nil, err
	}

	c.enter(StateSuccess)
	c.logger.Info("Authentication successful")
	return token, nil
}

func (c *Client) enter(s State) {
	c.logger.WithField("state", s.String()).Debug("device flow state")
	if c.observer != nil {
		c.observer(s)
	}
}

// requestDeviceCode performs the device authorization request per RFC 8628 section 3.1
func (c *Client) requestDeviceCode(ctx context.Context, challenge string) (*DeviceAuthorizationResponse, error) {
	form := url.Values{
		"client_id":             {c.cfg.ClientID},
		"code_challenge_method": {pkce.MethodS256},
		"code_challenge":        {challenge},
	}
	if c.cfg.Scope != "" {
		form.Set("scope", c.cfg.Scope)
	}

	status, body, err := c.postForm(ctx, c.cfg.DeviceEndpoint, form)
	if err != nil {
		return nil, &DeviceAuthorizationError{Err: err}
	}

	if status < 200 || status > 299 {
		return nil, &DeviceAuthorizationError{StatusCode: status, Body: string(body)}
	}

	var device DeviceAuthorizationResponse
	if err := json.Unmarshal(body, &device); err != nil {
		return nil, &DeviceAuthorizationError{
			StatusCode: status,
			Body:       string(body),
			Err:        fmt.Errorf("decoding device authorization response: %w", err),
		}
	}
	if device.DeviceCode == "" || device.displayURI() == "" {
		return nil, &DeviceAuthorizationError{
			StatusCode: status,
			Body:       string(body),
			Err:        errors.New("response is missing device_code or verification_uri_complete"),
		}
	}

	c.logger.WithFields(log.Fields{
		"user_code":  device.UserCode,
		"expires_in": device.ExpiresIn,
	}).Debug("device code issued")

	return &device, nil
}

// pollToken polls the token endpoint per RFC 8628 section 3.4. Only
// authorization_pending is retried.
func (c *Client) pollToken(ctx context.Context, deviceCode, verifier string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {GrantTypeDeviceCode},
		"client_id":     {c.cfg.ClientID},
		"device_code":   {deviceCode},
		"code_verifier": {verifier},
	}

	for {
		c.enter(StatePolling)

		status, body, err := c.postForm(ctx, c.cfg.TokenEndpoint, form)
		if err != nil {
			return nil, &TokenExchangeError{Err: err}
		}

		if status == http.StatusOK {
			var token TokenResponse
			if err := json.Unmarshal(body, &token); err != nil {
				return nil, &TokenExchangeError{
					StatusCode: status,
					Body:       string(body),
					Err:        fmt.Errorf("decoding token response: %w", err),
				}
			}
			token.ReceivedAt = time.Now()
			return &token, nil
		}

		var oauthErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &oauthErr); err != nil {
			return nil, &TokenExchangeError{
				StatusCode: status,
				Body:       string(body),
				Err:        fmt.Errorf("decoding error response: %w", err),
			}
		}

		if oauthErr.Error != ErrorCodeAuthorizationPending {
			return nil, &TokenExchangeError{
				StatusCode:  status,
				Code:        oauthErr.Error,
				Description: oauthErr.ErrorDescription,
				Body:        string(body),
			}
		}

		c.logger.WithField("interval", c.cfg.PollInterval.String()).Info("Waiting for authentication to complete...")
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// postForm sends a form-encoded POST and returns the status and body
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
