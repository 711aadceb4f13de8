package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrale/oauth2-device-login/internal/deviceflow"
	"github.com/wrale/oauth2-device-login/internal/redirect"
	"github.com/wrale/oauth2-device-login/internal/tokenstore"
)

// fakeServer answers the device and token endpoints. The first pendingPolls
// device code polls get authorization_pending.
type fakeServer struct {
	mu           sync.Mutex
	pendingPolls int
	grants       []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/device":
		json.NewEncoder(w).Encode(map[string]any{
			"device_code":               "dev-123",
			"user_code":                 "BCDF-GHJK",
			"verification_uri":          "http://keycloak:8080/device",
			"verification_uri_complete": "http://keycloak:8080/device?code=BCDF-GHJK",
			"expires_in":                600,
			"interval":                  5,
		})

	case "/token":
		f.mu.Lock()
		defer f.mu.Unlock()
		grant := r.PostForm.Get("grant_type")
		f.grants = append(f.grants, grant)

		if grant == deviceflow.GrantTypeDeviceCode && f.pendingPolls > 0 {
			f.pendingPolls--
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
			return
		}

		access := "access-device"
		if grant == "refresh_token" {
			access = "access-refreshed"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":       access,
			"token_type":         "Bearer",
			"expires_in":         300,
			"refresh_token":      "refresh-" + access,
			"refresh_expires_in": 1800,
			"scope":              "lakekeeper",
		})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServer) grantTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.grants...)
}

func newFakeServer(t *testing.T, pendingPolls int) (*fakeServer, *httptest.Server) {
	t.Helper()
	fake := &fakeServer{pendingPolls: pendingPolls}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	return fake, ts
}

func cliConfig(ts *httptest.Server, dir string) Config {
	return Config{
		TokenEndpoint:   ts.URL + "/token",
		DeviceEndpoint:  ts.URL + "/device",
		ClientID:        "lakekeeper",
		PollInterval:    time.Millisecond,
		EndpointRewrite: deviceflow.Rewrites{{From: "keycloak:8080", To: "localhost:30080"}},
		NoBrowser:       true,
		TokenStore:      storeFile,
		TokenDir:        dir,
		Mode:            modeLogin,
	}
}

func TestRun_Login(t *testing.T) {
	fake, ts := newFakeServer(t, 2)
	cfg := cliConfig(ts, t.TempDir())

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))

	output := out.String()
	assert.Contains(t, output, "Please open this URL to authenticate: http://localhost:30080/device?code=BCDF-GHJK")
	assert.Contains(t, output, "Authentication successful")
	assert.Contains(t, output, cfg.tokenKey())
	assert.NotContains(t, output, "access-device")
	assert.NotContains(t, output, "refresh-access-device")

	assert.Equal(t, []string{
		deviceflow.GrantTypeDeviceCode,
		deviceflow.GrantTypeDeviceCode,
		deviceflow.GrantTypeDeviceCode,
	}, fake.grantTypes())

	stored, err := tokenstore.NewFileStore(cfg.TokenDir).Load(context.Background(), cfg.tokenKey())
	require.NoError(t, err)
	assert.Equal(t, "access-device", stored.AccessToken)
	assert.Equal(t, "refresh-access-device", stored.RefreshToken)
}

func TestRun_Refresh(t *testing.T) {
	fake, ts := newFakeServer(t, 0)
	cfg := cliConfig(ts, t.TempDir())

	require.NoError(t, run(context.Background(), cfg, io.Discard))

	cfg.Mode = modeRefresh
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "Authentication successful")
	assert.NotContains(t, out.String(), "Please open this URL")

	assert.Equal(t, []string{deviceflow.GrantTypeDeviceCode, "refresh_token"}, fake.grantTypes())

	stored, err := tokenstore.NewFileStore(cfg.TokenDir).Load(context.Background(), cfg.tokenKey())
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed", stored.AccessToken)
}

func TestRun_RefreshWithoutStoredToken(t *testing.T) {
	fake, ts := newFakeServer(t, 0)
	cfg := cliConfig(ts, t.TempDir())
	cfg.Mode = modeRefresh

	err := run(context.Background(), cfg, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log in first")
	assert.Empty(t, fake.grantTypes())
}

func TestRun_Logout(t *testing.T) {
	_, ts := newFakeServer(t, 0)
	cfg := cliConfig(ts, t.TempDir())
	require.NoError(t, run(context.Background(), cfg, io.Discard))

	cfg.Mode = modeLogout
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "Removed token set")

	_, err := tokenstore.NewFileStore(cfg.TokenDir).Load(context.Background(), cfg.tokenKey())
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestRun_LogoutWithoutEndpoints(t *testing.T) {
	dir := t.TempDir()
	store := tokenstore.NewFileStore(dir)
	require.NoError(t, store.Save(context.Background(), "lakekeeper@auth", &deviceflow.TokenResponse{
		AccessToken: "access",
		ReceivedAt:  time.Now(),
	}))

	cfg := Config{
		TokenKey:   "lakekeeper@auth",
		TokenStore: storeFile,
		TokenDir:   dir,
		Mode:       modeLogout,
	}
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "Removed token set lakekeeper@auth")

	_, err := store.Load(context.Background(), "lakekeeper@auth")
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)

	cfg.TokenKey = ""
	assert.Error(t, run(context.Background(), cfg, io.Discard))
}

func TestRun_LoginPrintsURLAfterBrowser(t *testing.T) {
	_, ts := newFakeServer(t, 0)
	cfg := cliConfig(ts, t.TempDir())
	cfg.NoBrowser = false

	var opened []string
	open := redirect.HandlerFunc(func(_ context.Context, url string) error {
		opened = append(opened, url)
		return nil
	})

	var out bytes.Buffer
	require.NoError(t, runWith(context.Background(), cfg, &out, open))
	assert.Equal(t, []string{"http://localhost:30080/device?code=BCDF-GHJK"}, opened)
	assert.Contains(t, out.String(), "Opened the verification page in your browser.")
	assert.Contains(t, out.String(), "Please open this URL to authenticate: http://localhost:30080/device?code=BCDF-GHJK")
}

func TestDisplay(t *testing.T) {
	logger, _ := test.NewNullLogger()
	const url = "http://localhost/device?code=BCDF-GHJK"

	tests := []struct {
		name       string
		noBrowser  bool
		openErr    error
		wantOpened bool
		wantOutput []string
	}{
		{
			name:       "browser opened",
			wantOpened: true,
			wantOutput: []string{"Opened the verification page", "Please open this URL to authenticate: " + url},
		},
		{
			name:       "browser unavailable",
			openErr:    errors.New("exec: \"xdg-open\": executable file not found"),
			wantOpened: true,
			wantOutput: []string{"Please open this URL to authenticate: " + url},
		},
		{
			name:       "browser disabled",
			noBrowser:  true,
			wantOutput: []string{"Please open this URL to authenticate: " + url},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened := false
			open := redirect.HandlerFunc(func(context.Context, string) error {
				opened = true
				return tt.openErr
			})

			var out bytes.Buffer
			h := display(Config{NoBrowser: tt.noBrowser}, &out, logger, open)
			require.NoError(t, h.Redirect(context.Background(), url))

			assert.Equal(t, tt.wantOpened, opened)
			for _, want := range tt.wantOutput {
				assert.Contains(t, out.String(), want)
			}
			if tt.openErr != nil {
				assert.NotContains(t, out.String(), "Opened the verification page")
			}
		})
	}
}

func TestRun_NoStore(t *testing.T) {
	_, ts := newFakeServer(t, 0)
	cfg := cliConfig(ts, "")
	cfg.TokenStore = storeNone

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "not stored")

	cfg.Mode = modeRefresh
	assert.Error(t, run(context.Background(), cfg, io.Discard))
}

func TestRun_Timeout(t *testing.T) {
	_, ts := newFakeServer(t, 1<<30)
	cfg := cliConfig(ts, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := run(ctx, cfg, io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestRun_InvalidConfig(t *testing.T) {
	_, ts := newFakeServer(t, 0)

	cfg := cliConfig(ts, t.TempDir())
	cfg.ClientID = ""
	assert.ErrorIs(t, run(context.Background(), cfg, io.Discard), deviceflow.ErrMissingClientID)

	cfg = cliConfig(ts, t.TempDir())
	cfg.TokenStore = "s3"
	assert.Error(t, run(context.Background(), cfg, io.Discard))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DEVICE_LOGIN_TOKEN_ENDPOINT", "http://env/token")
	t.Setenv("DEVICE_LOGIN_DEVICE_ENDPOINT", "http://env/device")
	t.Setenv("DEVICE_LOGIN_CLIENT_ID", "env-client")
	t.Setenv("DEVICE_LOGIN_ENDPOINT_REWRITE", "lakekeeper-keycloak:8080=localhost:30080")

	cfg, err := loadConfig([]string{
		"-client-id", "flag-client",
		"-rewrite", "http:=https:",
		"-poll-interval", "2s",
		"-refresh",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "http://env/token", cfg.TokenEndpoint)
	assert.Equal(t, "flag-client", cfg.ClientID)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, modeRefresh, cfg.Mode)
	assert.Equal(t, storeFile, cfg.TokenStore)
	assert.Equal(t, deviceflow.Rewrites{
		{From: "lakekeeper-keycloak:8080", To: "localhost:30080"},
		{From: "http:", To: "https:"},
	}, cfg.EndpointRewrite)
	assert.Equal(t, "flag-client@env", cfg.tokenKey())
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "conflicting modes", args: []string{"-refresh", "-logout"}},
		{name: "positional argument", args: []string{"extra"}},
		{name: "bad rewrite", args: []string{"-rewrite", "nothing"}},
		{name: "unknown flag", args: []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	err := printSummary(&out, &deviceflow.TokenResponse{
		AccessToken:  "secret-access",
		RefreshToken: "secret-refresh",
		TokenType:    "Bearer",
		ExpiresIn:    60,
		ReceivedAt:   received,
	}, "cli@host", "/tmp/tokens")
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, received.Add(time.Minute).Local().Format(time.RFC3339))
	assert.Contains(t, s, "Refresh expires:  unknown")
	assert.NotContains(t, s, "secret")
}
