package verify

import (
	"net/http"

	"github.com/wrale/oauth2-device-login/internal/authserver"
	"github.com/wrale/oauth2-device-login/internal/templates"
)

// HandleForm shows the verification form, prefilled from
// verification_uri_complete when the code is present
func (h *Handler) HandleForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(r.Context(), w, http.StatusOK, templates.VerifyData{
		UserCode: r.URL.Query().Get(authserver.UserCodeParam),
	})
}
