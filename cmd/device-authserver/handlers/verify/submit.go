package verify

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/wrale/oauth2-device-login/internal/authserver"
	"github.com/wrale/oauth2-device-login/internal/templates"
)

// Form actions
const (
	ActionApprove = "approve"
	ActionDeny    = "deny"
)

// HandleSubmit records the user's decision on a device authorization
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request",
			"Unable to process form submission")
		return
	}

	if err := h.csrf.ValidateToken(ctx, r.PostFormValue("csrf_token")); err != nil {
		h.logger.WithError(err).Warn("Rejected verification form")
		h.renderError(w, http.StatusBadRequest,
			"Invalid Request",
			"Please reload the page and submit the form again.")
		return
	}

	data := templates.VerifyData{
		UserCode: strings.TrimSpace(r.PostFormValue("user_code")),
		Username: strings.TrimSpace(r.PostFormValue("username")),
	}
	if data.UserCode == "" {
		data.Error = "No device code was entered"
		h.renderForm(ctx, w, http.StatusBadRequest, data)
		return
	}

	var (
		code *authserver.DeviceCode
		err  error
	)
	switch r.PostFormValue("action") {
	case ActionApprove:
		if data.Username == "" {
			data.Error = "Enter a username to approve the request"
			h.renderForm(ctx, w, http.StatusBadRequest, data)
			return
		}
		code, err = h.flow.Approve(ctx, data.UserCode, data.Username)
	case ActionDeny:
		code, err = h.flow.Deny(ctx, data.UserCode)
	default:
		data.Error = "Choose approve or deny"
		h.renderForm(ctx, w, http.StatusBadRequest, data)
		return
	}

	if err != nil {
		h.handleFlowError(w, r, data, err)
		return
	}

	complete := templates.CompleteData{
		Approved: code.Status == authserver.StatusApproved,
		Message:  "The request from " + code.ClientID + " was denied.",
	}
	if complete.Approved {
		complete.Message = "Signed in to " + code.ClientID + " as " + code.Subject + "."
	}
	h.writePage(w, http.StatusOK, func(out io.Writer) error {
		return h.pages.RenderComplete(out, complete)
	})
}

func (h *Handler) handleFlowError(w http.ResponseWriter, r *http.Request, data templates.VerifyData, err error) {
	var oauthErr *authserver.Error
	if !errors.As(err, &oauthErr) || oauthErr.Code == authserver.ErrorCodeServerError {
		h.logger.WithError(err).Error("Verification failed")
		h.renderError(w, http.StatusInternalServerError,
			"System Error",
			"Unable to process request. Please try again.")
		return
	}

	switch oauthErr.Code {
	case authserver.ErrorCodeExpiredToken:
		data.Error = "This code has expired. Start again on your device."
	case authserver.ErrorCodeSlowDown:
		data.Error = "Too many attempts. Please wait a minute and try again."
		h.renderForm(r.Context(), w, http.StatusTooManyRequests, data)
		return
	default:
		data.Error = "Invalid or expired code. Please try again."
	}
	h.renderForm(r.Context(), w, http.StatusBadRequest, data)
}
