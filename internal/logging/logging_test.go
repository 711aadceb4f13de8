package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantLevel log.Level
		wantJSON  bool
		wantErr   bool
	}{
		{name: "defaults", cfg: Config{Level: "info"}, wantLevel: log.InfoLevel},
		{name: "debug json", cfg: Config{Level: "DEBUG", Format: "json"}, wantLevel: log.DebugLevel, wantJSON: true},
		{name: "bad level", cfg: Config{Level: "chatty"}, wantErr: true},
		{name: "bad format", cfg: Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := log.New()
			closer, err := Configure(logger, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closer.Close()

			assert.Equal(t, tt.wantLevel, logger.GetLevel())
			_, isJSON := logger.Formatter.(*log.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

func TestConfigureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device-login.log")
	logger := log.New()

	closer, err := Configure(logger, Config{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.WithField("client_id", "trino").Info("Device code issued")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"client_id":"trino"`)
	assert.Contains(t, string(data), `"msg":"Device code issued"`)
}

func TestRequestLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	})

	tests := []struct {
		path      string
		wantLevel log.Level
		wantCode  int
	}{
		{"/ok?code=WDJB-MJHT", log.DebugLevel, http.StatusOK},
		{"/bad", log.WarnLevel, http.StatusBadRequest},
	}

	for _, tt := range tests {
		hook.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		entry := hook.LastEntry()
		require.NotNil(t, entry, tt.path)
		assert.Equal(t, tt.wantLevel, entry.Level)
		assert.Equal(t, tt.wantCode, entry.Data["status"])
		assert.NotEmpty(t, entry.Data["request_id"])
		assert.NotContains(t, entry.Data["path"], "WDJB")
	}
}
