// Package verify serves the browser side of the device flow: the code entry
// form and the user's approve or deny decision (RFC 8628 section 3.3).
package verify

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/authserver"
	"github.com/wrale/oauth2-device-login/internal/templates"
)

// Flow is the part of the device flow the verification pages need
type Flow interface {
	Approve(ctx context.Context, userCode, subject string) (*authserver.DeviceCode, error)
	Deny(ctx context.Context, userCode string) (*authserver.DeviceCode, error)
}

// CSRF issues and checks single-use form tokens
type CSRF interface {
	GenerateToken(ctx context.Context) (string, error)
	ValidateToken(ctx context.Context, token string) error
}

// Pages renders the HTML pages
type Pages interface {
	RenderVerify(w io.Writer, data templates.VerifyData) error
	RenderComplete(w io.Writer, data templates.CompleteData) error
	RenderError(w io.Writer, data templates.ErrorData) error
}

// Handler processes user verification per RFC 8628 section 3.3
type Handler struct {
	flow       Flow
	csrf       CSRF
	pages      Pages
	submitPath string
	logger     log.FieldLogger
}

// Config contains handler configuration
type Config struct {
	Flow       Flow
	CSRF       CSRF
	Pages      Pages
	SubmitPath string // form action, e.g. /device/verify
	Logger     log.FieldLogger
}

// New creates a new verification handler
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handler{
		flow:       cfg.Flow,
		csrf:       cfg.CSRF,
		pages:      cfg.Pages,
		submitPath: cfg.SubmitPath,
		logger:     logger,
	}
}
