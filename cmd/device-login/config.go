package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/wrale/oauth2-device-login/internal/deviceflow"
	"github.com/wrale/oauth2-device-login/internal/logging"
)

const envPrefix = "DEVICE_LOGIN"

// Modes of operation
const (
	modeLogin   = "login"
	modeRefresh = "refresh"
	modeLogout  = "logout"
)

// Token store backends
const (
	storeFile  = "file"
	storeRedis = "redis"
	storeNone  = "none"
)

// Config holds CLI configuration from DEVICE_LOGIN_* environment variables,
// overridden by command line flags
type Config struct {
	TokenEndpoint  string        `envconfig:"TOKEN_ENDPOINT"`
	DeviceEndpoint string        `envconfig:"DEVICE_ENDPOINT"`
	ClientID       string        `envconfig:"CLIENT_ID"`
	Scope          string        `envconfig:"SCOPE"`
	HostHeader     string        `envconfig:"HOST_HEADER"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`

	// Comma separated from=to pairs, e.g. lakekeeper-keycloak:8080=localhost:30080
	EndpointRewrite deviceflow.Rewrites `envconfig:"ENDPOINT_REWRITE"`

	Timeout   time.Duration `envconfig:"TIMEOUT"` // No deadline when zero
	NoBrowser bool          `envconfig:"NO_BROWSER"`

	TokenStore string `envconfig:"TOKEN_STORE" default:"file"` // file, redis or none
	TokenDir   string `envconfig:"TOKEN_DIR"`
	TokenKey   string `envconfig:"TOKEN_KEY"`
	RedisURL   string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	Log logging.Config `envconfig:"LOG"`

	Mode        string `ignored:"true"`
	ShowVersion bool   `ignored:"true"`
}

// loadConfig reads the environment, then applies flags from args on top
func loadConfig(args []string, stderr io.Writer) (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("processing environment: %w", err)
	}

	fs := flag.NewFlagSet("device-login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.TokenEndpoint, "token-endpoint", cfg.TokenEndpoint, "OAuth token endpoint URL")
	fs.StringVar(&cfg.DeviceEndpoint, "device-endpoint", cfg.DeviceEndpoint, "device authorization endpoint URL")
	fs.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "OAuth client id")
	fs.StringVar(&cfg.Scope, "scope", cfg.Scope, "requested scope (defaults to the client id)")
	fs.StringVar(&cfg.HostHeader, "host", cfg.HostHeader, "Host header sent to the authorization server")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "token endpoint polling interval")
	fs.Var(&cfg.EndpointRewrite, "rewrite", "from=to replacement applied to the displayed URL (repeatable)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "give up after this long (0 waits indefinitely)")
	fs.BoolVar(&cfg.NoBrowser, "no-browser", cfg.NoBrowser, "print the verification URL instead of opening a browser")
	fs.StringVar(&cfg.TokenStore, "store", cfg.TokenStore, "token store: file, redis or none")
	fs.StringVar(&cfg.TokenDir, "token-dir", cfg.TokenDir, "directory for the file token store")
	fs.StringVar(&cfg.TokenKey, "key", cfg.TokenKey, "key the token set is stored under")
	refresh := fs.Bool("refresh", false, "refresh the stored token set instead of logging in")
	logout := fs.Bool("logout", false, "delete the stored token set")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch {
	case *refresh && *logout:
		return cfg, errors.New("-refresh and -logout are mutually exclusive")
	case *refresh:
		cfg.Mode = modeRefresh
	case *logout:
		cfg.Mode = modeLogout
	default:
		cfg.Mode = modeLogin
	}

	return cfg, nil
}

func (c Config) clientConfig() deviceflow.Config {
	return deviceflow.Config{
		TokenEndpoint:  c.TokenEndpoint,
		DeviceEndpoint: c.DeviceEndpoint,
		ClientID:       c.ClientID,
		Scope:          c.Scope,
		HostHeader:     c.HostHeader,
		PollInterval:   c.PollInterval,
		Rewrites:       c.EndpointRewrite,
	}
}

// tokenKey names the stored token set. By default it combines the client id
// with the token endpoint host so several servers can be used side by side.
func (c Config) tokenKey() string {
	if c.TokenKey != "" {
		return c.TokenKey
	}
	if u, err := url.Parse(c.TokenEndpoint); err == nil && u.Host != "" {
		return c.ClientID + "@" + u.Host
	}
	return c.ClientID
}
