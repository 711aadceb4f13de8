// Command device-login signs in to an OAuth 2.0 authorization server with the
// device authorization grant and PKCE, then stores the resulting token set.
//
// Configuration comes from DEVICE_LOGIN_* environment variables (optionally
// from a .env file) and command line flags, flags taking precedence:
//
//	device-login \
//	  -token-endpoint http://lakekeeper-keycloak:8080/realms/iceberg/protocol/openid-connect/token \
//	  -device-endpoint http://lakekeeper-keycloak:8080/realms/iceberg/protocol/openid-connect/auth/device \
//	  -client-id lakekeeper \
//	  -rewrite lakekeeper-keycloak:8080=localhost:30080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/internal/logging"
)

// Version is set by the build process
var Version = "dev"

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		return 2
	}

	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.ShowVersion {
		fmt.Println("device-login", Version)
		return 0
	}

	logFile, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		return 2
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.WithError(err).Error("Device login failed")
		return 1
	}
	return 0
}
