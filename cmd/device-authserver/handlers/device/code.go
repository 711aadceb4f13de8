package device

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/common"
	"github.com/wrale/oauth2-device-login/internal/authserver"
)

// CodeResponse represents the device code response per RFC 8628 section 3.2
type CodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// Flow is the part of the device flow this handler needs
type Flow interface {
	RequestDeviceCode(ctx context.Context, req authserver.DeviceRequest) (*authserver.DeviceCode, error)
}

// Handler processes device authorization requests per RFC 8628 section 3.1
type Handler struct {
	flow   Flow
	logger log.FieldLogger
}

// New creates a new device code request handler
func New(flow Flow, logger log.FieldLogger) *Handler {
	return &Handler{
		flow:   flow,
		logger: logger,
	}
}

// ServeHTTP handles device code requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		common.WriteError(w, authserver.ErrorCodeInvalidRequest, "POST method required")
		return
	}

	if err := common.ParseSingleValuedForm(r); err != nil {
		common.WriteFlowError(w, h.logger, err)
		return
	}

	code, err := h.flow.RequestDeviceCode(r.Context(), authserver.DeviceRequest{
		ClientID:            r.PostForm.Get("client_id"),
		Scope:               r.PostForm.Get("scope"),
		CodeChallenge:       r.PostForm.Get("code_challenge"),
		CodeChallengeMethod: r.PostForm.Get("code_challenge_method"),
	})
	if err != nil {
		common.WriteFlowError(w, h.logger, err)
		return
	}

	common.WriteJSON(w, CodeResponse{
		DeviceCode:              code.DeviceCode,
		UserCode:                code.UserCode,
		VerificationURI:         code.VerificationURI,
		VerificationURIComplete: code.VerificationURIComplete,
		ExpiresIn:               int(time.Until(code.ExpiresAt).Seconds()),
		Interval:                code.Interval,
	})
}
