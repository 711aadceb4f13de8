package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/authserver"
)

// ErrorResponse is the OAuth error body of RFC 6749 section 5.2
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SetJSONHeaders sets required headers for token and device endpoint responses
func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")
}

// StatusFor maps an OAuth error code to its HTTP status
func StatusFor(code string) int {
	switch code {
	case authserver.ErrorCodeInvalidClient:
		return http.StatusUnauthorized
	case authserver.ErrorCodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// WriteError sends an OAuth error response with the status for code
func WriteError(w http.ResponseWriter, code string, description string) {
	WriteErrorStatus(w, StatusFor(code), code, description)
}

// WriteErrorStatus sends an OAuth error response with an explicit status
func WriteErrorStatus(w http.ResponseWriter, status int, code string, description string) {
	SetJSONHeaders(w)
	w.WriteHeader(status)

	response := ErrorResponse{
		Error:            code,
		ErrorDescription: strings.TrimSpace(description),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Warn("Failed to write error response")
	}
}

// WriteFlowError writes err as returned by the flow. Protocol errors go to
// the client as-is; anything else is logged and reported as server_error.
func WriteFlowError(w http.ResponseWriter, logger log.FieldLogger, err error) {
	var oauthErr *authserver.Error
	if errors.As(err, &oauthErr) {
		WriteError(w, oauthErr.Code, oauthErr.Description)
		return
	}

	logger.WithError(err).Error("Request failed")
	WriteError(w, authserver.ErrorCodeServerError, "An unexpected error occurred processing the request")
}

// WriteJSON encodes v with the JSON headers and a 200 status
func WriteJSON(w http.ResponseWriter, v any) {
	SetJSONHeaders(w)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

// ParseSingleValuedForm parses the request form and rejects repeated
// parameters (RFC 6749 section 3.1)
func ParseSingleValuedForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return authserver.NewError(authserver.ErrorCodeInvalidRequest, "Invalid request format")
	}
	for key, values := range r.PostForm {
		if len(values) > 1 {
			return authserver.NewError(authserver.ErrorCodeInvalidRequest,
				"Parameters MUST NOT be included more than once: "+key)
		}
	}
	return nil
}
