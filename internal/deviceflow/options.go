package deviceflow

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/redirect"
)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. The client is copied so
// that redirects are never followed and the Host override applies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.baseHTTP = hc
	}
}

// WithDisplay sets where the verification URL is shown
func WithDisplay(h redirect.Handler) Option {
	return func(c *Client) {
		c.display = h
	}
}

// WithLogger sets the logger used for progress messages
func WithLogger(logger log.FieldLogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithStateObserver registers a callback for state transitions
func WithStateObserver(fn StateObserver) Option {
	return func(c *Client) {
		c.observer = fn
	}
}
