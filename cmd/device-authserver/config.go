package main

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/wrale/oauth2-device-login/internal/logging"
)

const envPrefix = "AUTHSERVER"

// Config holds server configuration loaded from AUTHSERVER_* environment variables
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	BaseURL  string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	RedisURL string `envconfig:"REDIS_URL"` // In-memory stores when empty

	SigningKey      string        `envconfig:"SIGNING_KEY" required:"true"`
	Issuer          string        `envconfig:"ISSUER"` // Defaults to BASE_URL
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"720h"`

	CSRFSecret      string        `envconfig:"CSRF_SECRET" required:"true"`
	CSRFTokenExpiry time.Duration `envconfig:"CSRF_TOKEN_EXPIRY" default:"15m"`

	CodeExpiry          time.Duration `envconfig:"CODE_EXPIRY" default:"15m"`
	PollInterval        time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	EnforcePollInterval bool          `envconfig:"ENFORCE_POLL_INTERVAL" default:"true"`
	RequirePKCE         bool          `envconfig:"REQUIRE_PKCE" default:"true"`
	VerifyWindow        time.Duration `envconfig:"VERIFY_WINDOW" default:"1m"`
	MaxVerifyAttempts   int           `envconfig:"MAX_VERIFY_ATTEMPTS" default:"5"`

	// Device authorization requests per second and burst, per client id
	DeviceRateLimit float64 `envconfig:"DEVICE_RATE_LIMIT" default:"1"`
	DeviceRateBurst int     `envconfig:"DEVICE_RATE_BURST" default:"5"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	Log logging.Config `envconfig:"LOG"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("processing environment: %w", err)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = cfg.BaseURL
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if c.CSRFSecret == "" {
		return errors.New("CSRF_SECRET is required")
	}
	if c.DeviceRateLimit <= 0 || c.DeviceRateBurst <= 0 {
		return errors.New("DEVICE_RATE_LIMIT and DEVICE_RATE_BURST must be positive")
	}
	return nil
}
