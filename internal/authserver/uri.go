package authserver

import (
	"net/url"
	"path"

	"github.com/wrale/oauth2-device-login/internal/validation"
)

// UserCodeParam is the query parameter carrying the user code in
// verification_uri_complete
const UserCodeParam = "code"

// buildVerificationURIs returns the verification_uri and the
// verification_uri_complete carrying the user code (RFC 8628 section 3.3.1).
// Invalid user codes get no complete URI.
func (f *Flow) buildVerificationURIs(userCode string) (string, string) {
	base, err := url.Parse(f.baseURL)
	if err != nil {
		return "", ""
	}
	base.Path = path.Join("/", base.Path, "device")
	verificationURI := base.String()

	if err := validation.ValidateUserCode(userCode); err != nil {
		return verificationURI, ""
	}

	complete := *base
	q := complete.Query()
	q.Set(UserCodeParam, userCode)
	complete.RawQuery = q.Encode()

	return verificationURI, complete.String()
}
