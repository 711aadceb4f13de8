package authserver

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/pkce"
)

const (
	// MinExpiryDuration defines the minimum device code lifetime
	MinExpiryDuration = 10 * time.Minute

	// DefaultPollInterval is advertised when no interval is configured
	DefaultPollInterval = 5 * time.Second

	// DeviceCodeBytes is the device code entropy; codes are hex encoded
	DeviceCodeBytes = 32

	defaultAttemptWindow = time.Minute
	defaultMaxAttempts   = 5
)

// Observer receives flow events. Outcomes are OAuth error codes or "issued".
type Observer interface {
	DeviceAuthorized(clientID string)
	TokenPolled(grantType, outcome string)
	Verified(decision string)
}

type noopObserver struct{}

func (noopObserver) DeviceAuthorized(string)    {}
func (noopObserver) TokenPolled(string, string) {}
func (noopObserver) Verified(string)            {}

// Flow manages the device authorization grant flow per RFC 8628
type Flow struct {
	store  Store
	tokens *TokenIssuer

	baseURL         string
	expiryDuration  time.Duration
	pollInterval    time.Duration
	enforceInterval bool
	attemptWindow   time.Duration
	maxAttempts     int
	requirePKCE     bool

	logger   log.FieldLogger
	observer Observer
}

// NewFlow creates a new device flow manager with provided options
func NewFlow(store Store, tokens *TokenIssuer, baseURL string, opts ...Option) *Flow {
	f := &Flow{
		store:          store,
		tokens:         tokens,
		baseURL:        baseURL,
		expiryDuration: MinExpiryDuration,
		pollInterval:   DefaultPollInterval,
		attemptWindow:  defaultAttemptWindow,
		maxAttempts:    defaultMaxAttempts,
		logger:         log.StandardLogger(),
		observer:       noopObserver{},
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.expiryDuration < MinExpiryDuration {
		f.expiryDuration = MinExpiryDuration
	}
	if f.pollInterval <= 0 {
		f.pollInterval = DefaultPollInterval
	}
	if f.attemptWindow <= 0 {
		f.attemptWindow = defaultAttemptWindow
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = defaultMaxAttempts
	}

	return f
}

// PollInterval returns the interval advertised to devices
func (f *Flow) PollInterval() time.Duration {
	return f.pollInterval
}

// RequestDeviceCode initiates a new device authorization (RFC 8628 section 3.1)
func (f *Flow) RequestDeviceCode(ctx context.Context, req DeviceRequest) (*DeviceCode, error) {
	if req.ClientID == "" {
		return nil, NewError(ErrorCodeInvalidRequest, "client_id is required")
	}
	if err := f.checkChallenge(req); err != nil {
		return nil, err
	}

	deviceCode, err := generateSecureCode(DeviceCodeBytes)
	if err != nil {
		return nil, fmt.Errorf("generating device code: %w", err)
	}

	userCode, err := generateUserCode()
	if err != nil {
		return nil, fmt.Errorf("generating user code: %w", err)
	}

	verificationURI, verificationURIComplete := f.buildVerificationURIs(userCode)

	interval := int(f.pollInterval.Seconds())
	if interval < 1 {
		interval = 1
	}

	code := &DeviceCode{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURIComplete,
		ExpiresIn:               int(f.expiryDuration.Seconds()),
		Interval:                interval,
		ExpiresAt:               time.Now().Add(f.expiryDuration),
		ClientID:                req.ClientID,
		Scope:                   req.Scope,
		CodeChallenge:           req.CodeChallenge,
		CodeChallengeMethod:     req.CodeChallengeMethod,
		Status:                  StatusPending,
	}

	if err := f.store.SaveDeviceCode(ctx, code); err != nil {
		return nil, fmt.Errorf("saving device code: %w", err)
	}

	f.observer.DeviceAuthorized(req.ClientID)
	f.logger.WithFields(log.Fields{
		"client_id": req.ClientID,
		"user_code": userCode,
		"pkce":      req.CodeChallenge != "",
	}).Info("Device code issued")

	return code, nil
}

func (f *Flow) checkChallenge(req DeviceRequest) error {
	if req.CodeChallenge == "" {
		if req.CodeChallengeMethod != "" {
			return NewError(ErrorCodeInvalidRequest, "code_challenge_method given without code_challenge")
		}
		if f.requirePKCE {
			return NewError(ErrorCodeInvalidRequest, "code_challenge is required")
		}
		return nil
	}

	if req.CodeChallengeMethod != pkce.MethodS256 {
		return NewError(ErrorCodeInvalidRequest, "code_challenge_method must be S256")
	}
	if len(req.CodeChallenge) != pkce.ChallengeLength {
		return NewError(ErrorCodeInvalidRequest, "code_challenge is malformed")
	}
	return nil
}

// GetDeviceCode retrieves a live device code. Unknown codes yield
// invalid_grant and expired ones expired_token.
func (f *Flow) GetDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error) {
	code, err := f.store.GetDeviceCode(ctx, deviceCode)
	if err != nil {
		return nil, fmt.Errorf("getting device code: %w", err)
	}
	if code == nil {
		return nil, NewError(ErrorCodeInvalidGrant, "unknown device code")
	}

	if time.Now().After(code.ExpiresAt) {
		return nil, NewError(ErrorCodeExpiredToken, "device code has expired")
	}

	code.ExpiresIn = int(time.Until(code.ExpiresAt).Seconds())
	return code, nil
}

// CheckHealth verifies the flow manager's storage backend is healthy
func (f *Flow) CheckHealth(ctx context.Context) error {
	if err := f.store.CheckHealth(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnhealthy, err)
	}
	return nil
}
