package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/device"
	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/health"
	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/token"
	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/verify"
	"github.com/wrale/oauth2-device-login/internal/authserver"
	"github.com/wrale/oauth2-device-login/internal/csrf"
	"github.com/wrale/oauth2-device-login/internal/logging"
	"github.com/wrale/oauth2-device-login/internal/metrics"
	"github.com/wrale/oauth2-device-login/internal/templates"
)

// Route paths
const (
	pathDeviceCode = "/device/code"
	pathToken      = "/token"
	pathVerify     = "/device"
	pathSubmit     = "/device/verify"
	pathHealth     = "/health"
	pathMetrics    = "/metrics"
)

const requestTimeout = 30 * time.Second

type server struct {
	cfg     Config
	router  *chi.Mux
	flow    *authserver.Flow
	csrf    *csrf.Manager
	metrics *metrics.Metrics
	limiter *clientLimiter
	logger  log.FieldLogger
}

func newServer(cfg Config, flow *authserver.Flow, csrfManager *csrf.Manager, m *metrics.Metrics, logger log.FieldLogger) (*server, error) {
	tmpls, err := templates.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	srv := &server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		flow:    flow,
		csrf:    csrfManager,
		metrics: m,
		limiter: newClientLimiter(cfg.DeviceRateLimit, cfg.DeviceRateBurst),
		logger:  logger,
	}

	srv.router.Use(requestID)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(logging.RequestLogger(logger))
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(m.Middleware)
	srv.router.Use(middleware.Timeout(requestTimeout))

	srv.routes(tmpls)

	return srv, nil
}

func (s *server) routes(tmpls *templates.Templates) {
	verifyHandler := verify.New(verify.Config{
		Flow:       s.flow,
		CSRF:       s.csrf,
		Pages:      tmpls,
		SubmitPath: pathSubmit,
		Logger:     s.logger,
	})

	s.router.Get(pathHealth, health.New(map[string]health.Checker{
		"store": s.flow,
		"csrf":  s.csrf,
	}, Version, s.logger).ServeHTTP)
	s.router.Method(http.MethodGet, pathMetrics, s.metrics.Handler())

	s.router.With(s.limiter.middleware).Post(pathDeviceCode, device.New(s.flow, s.logger).ServeHTTP)
	s.router.Post(pathToken, token.New(s.flow, s.logger).ServeHTTP)
	s.router.Get(pathVerify, verifyHandler.HandleForm)
	s.router.Post(pathSubmit, verifyHandler.HandleSubmit)
}

// requestID tags each request with an id for log correlation, keeping a
// caller supplied X-Request-Id
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
