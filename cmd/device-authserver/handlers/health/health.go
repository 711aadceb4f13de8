package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	log "github.com/sirupsen/logrus"
)

// Checker is a component that can report its health
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// Handler processes health check requests
type Handler struct {
	checks  map[string]Checker
	version string
	logger  log.FieldLogger
}

// Response represents the health check response
type Response struct {
	Status  string                     `json:"status"`
	Version string                     `json:"version,omitempty"`
	Details map[string]ComponentStatus `json:"details,omitempty"`
}

// ComponentStatus is the health of one component
type ComponentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// New creates a health handler over the named components
func New(checks map[string]Checker, version string, logger log.FieldLogger) *Handler {
	return &Handler{
		checks:  checks,
		version: version,
		logger:  logger,
	}
}

// ServeHTTP handles health check requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	response := Response{
		Status:  "healthy",
		Version: h.version,
		Details: make(map[string]ComponentStatus, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name].CheckHealth(r.Context()); err != nil {
			h.logger.WithError(err).WithField("component", name).Warn("Health check failed")
			response.Status = "unhealthy"
			response.Details[name] = ComponentStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		response.Details[name] = ComponentStatus{Status: "healthy"}
	}

	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Warn("Failed to write health response")
	}
}
