// Package integration runs the device login client against the development
// authorization server in-process.
package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/device"
	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/token"
	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/verify"
	"github.com/wrale/oauth2-device-login/internal/authserver"
	"github.com/wrale/oauth2-device-login/internal/csrf"
	"github.com/wrale/oauth2-device-login/internal/templates"
)

// Configuration for integration tests
const (
	// PublicBaseURL is the address the server advertises, as seen from
	// inside a cluster. Clients rewrite it to the test server's address.
	PublicBaseURL = "http://auth.internal:8080"

	ClientID     = "lakekeeper"
	SigningKey   = "integration-signing-key-0123456789"
	TestTimeout  = 30 * time.Second
	PollInterval = 10 * time.Millisecond
)

// TestSuite provides shared functionality for integration tests
type TestSuite struct {
	T      *testing.T
	Client *http.Client
	Ctx    context.Context

	Server *httptest.Server
	Flow   *authserver.Flow
	Issuer *authserver.TokenIssuer
}

// Stores selects the backends the server runs on
type Stores struct {
	Flow authserver.Store
	CSRF csrf.Store
}

// NewSuite starts a development server on in-memory stores
func NewSuite(t *testing.T) *TestSuite {
	return NewSuiteWithStores(t, Stores{
		Flow: authserver.NewMemoryStore(),
		CSRF: csrf.NewMemoryStore(),
	})
}

// NewSuiteWithStores starts a development server on the given stores
func NewSuiteWithStores(t *testing.T, stores Stores) *TestSuite {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	t.Cleanup(cancel)

	logger, _ := test.NewNullLogger()
	issuer, err := authserver.NewTokenIssuer([]byte(SigningKey), PublicBaseURL, time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("Creating token issuer: %v", err)
	}
	flow := authserver.NewFlow(stores.Flow, issuer, PublicBaseURL,
		authserver.WithRequirePKCE(true),
		authserver.WithLogger(logger),
	)

	tmpls, err := templates.LoadTemplates()
	if err != nil {
		t.Fatalf("Loading templates: %v", err)
	}

	r := chi.NewRouter()
	r.Post("/device/code", device.New(flow, logger).ServeHTTP)
	r.Post("/token", token.New(flow, logger).ServeHTTP)
	pages := verify.New(verify.Config{
		Flow:       flow,
		CSRF:       csrf.NewManager(stores.CSRF, []byte("integration-csrf"), time.Minute),
		Pages:      tmpls,
		SubmitPath: "/device/verify",
		Logger:     logger,
	})
	r.Get("/device", pages.HandleForm)
	r.Post("/device/verify", pages.HandleSubmit)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &TestSuite{
		T:      t,
		Client: &http.Client{Timeout: 10 * time.Second},
		Ctx:    ctx,
		Server: srv,
		Flow:   flow,
		Issuer: issuer,
	}
}

// URL returns the test server address for path
func (s *TestSuite) URL(path string) string {
	return s.Server.URL + path
}

// ExtractCSRFToken extracts CSRF token from HTML response
func (s *TestSuite) ExtractCSRFToken(html string) string {
	if i := strings.Index(html, `name="csrf_token" value="`); i > 0 {
		html = html[i+len(`name="csrf_token" value="`):]
		if i := strings.Index(html, `"`); i > 0 {
			return html[:i]
		}
	}
	return ""
}

// Decide plays the user: it opens verificationURL, reads the prefilled code
// and submits the decision. An empty subject denies the request.
func (s *TestSuite) Decide(verificationURL, subject string) error {
	page, err := s.get(verificationURL)
	if err != nil {
		return fmt.Errorf("opening verification page: %w", err)
	}

	csrfToken := s.ExtractCSRFToken(page)
	if csrfToken == "" {
		return errors.New("no csrf token on verification page")
	}
	u, err := url.Parse(verificationURL)
	if err != nil {
		return fmt.Errorf("parsing verification url: %w", err)
	}

	form := url.Values{
		"csrf_token": {csrfToken},
		"user_code":  {u.Query().Get(authserver.UserCodeParam)},
		"action":     {"deny"},
	}
	if subject != "" {
		form.Set("action", "approve")
		form.Set("username", subject)
	}

	req, err := http.NewRequestWithContext(s.Ctx, http.MethodPost, s.URL("/device/verify"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("submitting decision: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("decision returned status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func (s *TestSuite) get(u string) (string, error) {
	req, err := http.NewRequestWithContext(s.Ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}
