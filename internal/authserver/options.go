package authserver

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Option configures the device flow implementation
type Option func(*Flow)

// WithExpiryDuration sets the device code lifetime. Values below
// MinExpiryDuration are raised to it.
func WithExpiryDuration(d time.Duration) Option {
	return func(f *Flow) {
		f.expiryDuration = d
	}
}

// WithPollInterval sets the advertised polling interval. When enforcement is
// on, polls arriving sooner than this are answered with slow_down.
func WithPollInterval(d time.Duration, enforce bool) Option {
	return func(f *Flow) {
		f.pollInterval = d
		f.enforceInterval = enforce
	}
}

// WithVerificationLimit bounds user code verification attempts per window
// (RFC 8628 section 5.1)
func WithVerificationLimit(window time.Duration, maxAttempts int) Option {
	return func(f *Flow) {
		f.attemptWindow = window
		f.maxAttempts = maxAttempts
	}
}

// WithRequirePKCE rejects device requests that carry no code challenge
func WithRequirePKCE(required bool) Option {
	return func(f *Flow) {
		f.requirePKCE = required
	}
}

// WithLogger sets the logger
func WithLogger(logger log.FieldLogger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithObserver registers hooks for flow events, used for metrics
func WithObserver(o Observer) Option {
	return func(f *Flow) {
		f.observer = o
	}
}
