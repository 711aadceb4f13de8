package verify

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/wrale/oauth2-device-login/internal/templates"
)

// writePage renders into a buffer first so a template failure can still be
// answered with a clean status
func (h *Handler) writePage(w http.ResponseWriter, status int, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		h.logger.WithError(err).Error("Failed to render page")
		http.Error(w, "error rendering page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WithError(err).Warn("Failed to write page")
	}
}

func (h *Handler) renderError(w http.ResponseWriter, status int, title, message string) {
	h.writePage(w, status, func(out io.Writer) error {
		return h.pages.RenderError(out, templates.ErrorData{Title: title, Message: message})
	})
}

// renderForm shows the code entry form with a fresh token. Tokens are
// single use, so every rendering needs its own.
func (h *Handler) renderForm(ctx context.Context, w http.ResponseWriter, status int, data templates.VerifyData) {
	token, err := h.csrf.GenerateToken(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate csrf token")
		h.renderError(w, http.StatusInternalServerError,
			"System Error",
			"Unable to process request. Please try again.")
		return
	}

	data.CSRFToken = token
	data.Action = h.submitPath
	h.writePage(w, status, func(out io.Writer) error {
		return h.pages.RenderVerify(out, data)
	})
}
