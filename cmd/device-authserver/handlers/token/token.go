package token

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/common"
	"github.com/wrale/oauth2-device-login/internal/authserver"
)

// Flow is the part of the device flow the token endpoint needs
type Flow interface {
	ExchangeDeviceCode(ctx context.Context, clientID, deviceCode, verifier string) (*authserver.TokenResponse, error)
	Refresh(ctx context.Context, clientID, refreshToken string) (*authserver.TokenResponse, error)
}

// Handler serves the token endpoint: device access token requests per RFC
// 8628 section 3.4 and refresh requests per RFC 6749 section 6
type Handler struct {
	flow   Flow
	logger log.FieldLogger
}

// New creates a new token request handler
func New(flow Flow, logger log.FieldLogger) *Handler {
	return &Handler{
		flow:   flow,
		logger: logger,
	}
}

// ServeHTTP handles token requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		common.WriteError(w, authserver.ErrorCodeInvalidRequest, "POST method required")
		return
	}

	if err := common.ParseSingleValuedForm(r); err != nil {
		common.WriteFlowError(w, h.logger, err)
		return
	}

	clientID := r.PostForm.Get("client_id")
	if clientID == "" {
		common.WriteError(w, authserver.ErrorCodeInvalidRequest,
			"The client_id parameter is REQUIRED for public clients")
		return
	}

	var (
		token *authserver.TokenResponse
		err   error
	)
	switch grantType := r.PostForm.Get("grant_type"); grantType {
	case "":
		common.WriteError(w, authserver.ErrorCodeInvalidRequest, "The grant_type parameter is REQUIRED")
		return
	case authserver.GrantTypeDeviceCode:
		token, err = h.flow.ExchangeDeviceCode(r.Context(), clientID,
			r.PostForm.Get("device_code"), r.PostForm.Get("code_verifier"))
	case authserver.GrantTypeRefreshToken:
		token, err = h.flow.Refresh(r.Context(), clientID, r.PostForm.Get("refresh_token"))
	default:
		common.WriteError(w, authserver.ErrorCodeUnsupportedGrant,
			"Supported grant types: "+authserver.GrantTypeDeviceCode+", "+authserver.GrantTypeRefreshToken)
		return
	}

	if err != nil {
		common.WriteFlowError(w, h.logger, err)
		return
	}

	common.WriteJSON(w, token)
}
