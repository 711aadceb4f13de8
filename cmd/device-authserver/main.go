// Command device-authserver is a development authorization server speaking
// the device authorization grant (RFC 8628) with PKCE (RFC 7636).
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/authserver"
	"github.com/wrale/oauth2-device-login/internal/csrf"
	"github.com/wrale/oauth2-device-login/internal/logging"
	"github.com/wrale/oauth2-device-login/internal/metrics"
)

// Version is set by the build process
var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Fatal("Error loading .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("Error loading configuration")
	}

	logFile, err := logging.Setup(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("Error configuring logging")
	}
	defer logFile.Close()

	if err := run(cfg); err != nil {
		log.WithError(err).Error("Server failed")
		logFile.Close()
		os.Exit(1)
	}
}

// stores holds the backing stores for the flow and CSRF tokens
type stores struct {
	flow  authserver.Store
	csrf  csrf.Store
	close func() error
}

func openStores(ctx context.Context, redisURL string) (*stores, error) {
	if redisURL == "" {
		log.Warn("No AUTHSERVER_REDIS_URL set, using in-memory stores")
		return &stores{
			flow:  authserver.NewMemoryStore(),
			csrf:  csrf.NewMemoryStore(),
			close: func() error { return nil },
		}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &stores{
		flow:  authserver.NewRedisStore(client),
		csrf:  csrf.NewRedisStore(client),
		close: client.Close,
	}, nil
}

func run(cfg Config) error {
	logger := log.StandardLogger()

	st, err := openStores(context.Background(), cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.WithError(err).Warn("Error closing store")
		}
	}()

	issuer, err := authserver.NewTokenIssuer([]byte(cfg.SigningKey), cfg.Issuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	m := metrics.New()
	flow := authserver.NewFlow(st.flow, issuer, cfg.BaseURL,
		authserver.WithExpiryDuration(cfg.CodeExpiry),
		authserver.WithPollInterval(cfg.PollInterval, cfg.EnforcePollInterval),
		authserver.WithVerificationLimit(cfg.VerifyWindow, cfg.MaxVerifyAttempts),
		authserver.WithRequirePKCE(cfg.RequirePKCE),
		authserver.WithLogger(logger),
		authserver.WithObserver(m),
	)
	csrfManager := csrf.NewManager(st.csrf, []byte(cfg.CSRFSecret), cfg.CSRFTokenExpiry)

	srv, err := newServer(cfg, flow, csrfManager, m, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"port":     cfg.Port,
			"base_url": cfg.BaseURL,
			"version":  Version,
		}).Info("Server listening")
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("starting server: %w", err)

	case sig := <-shutdown:
		logger.WithField("signal", sig.String()).Info("Starting shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Error shutting down server")
			if err := httpServer.Close(); err != nil {
				logger.WithError(err).Warn("Error closing server")
			}
		}
	}

	return nil
}
