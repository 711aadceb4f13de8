package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/deviceflow"
	"github.com/wrale/oauth2-device-login/internal/redirect"
	"github.com/wrale/oauth2-device-login/internal/tokenstore"
)

const redisKeyPrefix = "device-login:"

// tokenStore is an opened backend together with a description for output
type tokenStore struct {
	tokenstore.Store
	location string
	close    func() error
}

func openTokenStore(ctx context.Context, cfg Config) (*tokenStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.TokenStore)) {
	case storeNone, "":
		return nil, nil

	case storeFile:
		dir := cfg.TokenDir
		if dir == "" {
			base, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("locating config directory: %w", err)
			}
			dir = filepath.Join(base, "device-login")
		}
		return &tokenStore{
			Store:    tokenstore.NewFileStore(dir),
			location: dir,
			close:    func() error { return nil },
		}, nil

	case storeRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opts)
		store := tokenstore.NewRedisStore(client, redisKeyPrefix)
		if err := store.CheckHealth(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return &tokenStore{
			Store:    store,
			location: "redis " + opts.Addr,
			close:    client.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

// display prints the verification URL, after trying open unless the
// browser is disabled
func display(cfg Config, stdout io.Writer, logger log.FieldLogger, open redirect.Handler) redirect.Handler {
	console := redirect.Console(stdout, nil)
	if cfg.NoBrowser || open == nil {
		return console
	}

	return redirect.HandlerFunc(func(ctx context.Context, url string) error {
		if err := open.Redirect(ctx, url); err != nil {
			logger.WithError(err).Debug("Browser unavailable, printing URL")
		} else {
			fmt.Fprintln(stdout, "Opened the verification page in your browser.")
		}
		return console.Redirect(ctx, url)
	})
}

func run(ctx context.Context, cfg Config, stdout io.Writer) error {
	return runWith(ctx, cfg, stdout, redirect.Browser())
}

// runWith executes the configured mode. The client is only built for modes
// that talk to the authorization server.
func runWith(ctx context.Context, cfg Config, stdout io.Writer, open redirect.Handler) error {
	logger := log.StandardLogger()

	var client *deviceflow.Client
	if cfg.Mode != modeLogout {
		c, err := deviceflow.NewClient(cfg.clientConfig(),
			deviceflow.WithDisplay(display(cfg, stdout, logger, open)),
			deviceflow.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("configuring client: %w", err)
		}
		client = c
	}

	key := cfg.tokenKey()
	if key == "" {
		return errors.New("no token key: set -key or -client-id")
	}

	store, err := openTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.close(); err != nil {
				logger.WithError(err).Warn("Error closing token store")
			}
		}()
	}

	switch cfg.Mode {
	case modeRefresh:
		return refresh(ctx, client, store, key, stdout)
	case modeLogout:
		return logout(ctx, store, key, stdout)
	default:
		return login(ctx, client, store, key, stdout)
	}
}

func login(ctx context.Context, client *deviceflow.Client, store *tokenStore, key string, stdout io.Writer) error {
	token, err := client.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	return save(ctx, store, key, token, stdout)
}

func refresh(ctx context.Context, client *deviceflow.Client, store *tokenStore, key string, stdout io.Writer) error {
	if store == nil {
		return errors.New("refresh needs a token store")
	}

	current, err := store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return fmt.Errorf("no stored token set for %s, log in first", key)
		}
		return fmt.Errorf("loading token set: %w", err)
	}
	if current.RefreshToken == "" {
		return fmt.Errorf("stored token set for %s has no refresh token", key)
	}

	token, err := client.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return err
	}
	return save(ctx, store, key, token, stdout)
}

func logout(ctx context.Context, store *tokenStore, key string, stdout io.Writer) error {
	if store == nil {
		return errors.New("logout needs a token store")
	}
	if err := store.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting token set: %w", err)
	}
	_, err := fmt.Fprintf(stdout, "Removed token set %s from %s\n", key, store.location)
	return err
}

func save(ctx context.Context, store *tokenStore, key string, token *deviceflow.TokenResponse, stdout io.Writer) error {
	location := "not stored"
	if store != nil {
		if err := store.Save(ctx, key, token); err != nil {
			return fmt.Errorf("saving token set: %w", err)
		}
		location = store.location
	}
	return printSummary(stdout, token, key, location)
}

// printSummary describes the token set without revealing any token
func printSummary(w io.Writer, token *deviceflow.TokenResponse, key, location string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Authentication successful")
	fmt.Fprintf(tw, "  Key:\t%s\n", key)
	fmt.Fprintf(tw, "  Token type:\t%s\n", token.TokenType)
	if token.Scope != "" {
		fmt.Fprintf(tw, "  Scope:\t%s\n", token.Scope)
	}
	fmt.Fprintf(tw, "  Access expires:\t%s\n", formatExpiry(token.AccessExpiry()))
	if token.RefreshToken != "" {
		fmt.Fprintf(tw, "  Refresh expires:\t%s\n", formatExpiry(token.RefreshExpiry()))
	}
	fmt.Fprintf(tw, "  Stored in:\t%s\n", location)
	return tw.Flush()
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(time.RFC3339)
}
