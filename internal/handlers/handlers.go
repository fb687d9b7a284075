// Package handlers serves the flowhawk HTTP API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/telhawk-systems/flowhawk/common/httputil"
	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/dataset"
	"github.com/telhawk-systems/flowhawk/internal/dlq"
	"github.com/telhawk-systems/flowhawk/internal/repository"
	"github.com/telhawk-systems/flowhawk/internal/service"
	"github.com/telhawk-systems/flowhawk/internal/synthetic"
)

// DefaultKeepAlive is the comment interval on idle alert streams.
const DefaultKeepAlive = 15 * time.Second

// Check is one dependency probed by the readiness endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Config carries the handler dependencies. Synthetic and DLQ may be nil.
type Config struct {
	Alerts    *service.AlertService
	Datasets  *service.DatasetService
	Synthetic *synthetic.Runner
	DLQ       *dlq.Queue
	Checks    []Check
	Logger    *logging.Logger
	KeepAlive time.Duration
}

type Handler struct {
	alerts    *service.AlertService
	datasets  *service.DatasetService
	synthetic *synthetic.Runner
	dlq       *dlq.Queue
	checks    []Check
	logger    *logging.Logger
	keepAlive time.Duration
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Handler{
		alerts:    cfg.Alerts,
		datasets:  cfg.Datasets,
		synthetic: cfg.Synthetic,
		dlq:       cfg.DLQ,
		checks:    cfg.Checks,
		logger:    cfg.Logger,
		keepAlive: cfg.KeepAlive,
	}
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"stats":  h.alerts.Health(),
	})
}

// ReadyCheck handles GET /readyz. Every configured dependency must answer.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "check", c.Name, logging.Error(err))
			results[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	httputil.WriteJSON(w, status, map[string]interface{}{"status": state, "checks": results})
}

// writeServiceError maps service errors to HTTP responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var malformed *dataset.MalformedSourceError
	switch {
	case errors.As(err, &malformed):
		httputil.WriteMissingColumns(w, malformed.Error(), malformed.Missing)
	case errors.Is(err, repository.ErrAlertNotFound),
		errors.Is(err, service.ErrNoReferenceDataset),
		errors.Is(err, service.ErrNoDefaultDataset),
		service.IsNotFound(err):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUnsupportedFile),
		errors.Is(err, service.ErrDatasetRequired),
		errors.Is(err, service.ErrUnknownAttackType),
		errors.Is(err, service.ErrInvalidCount),
		errors.Is(err, synthetic.ErrInvalidRate):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Error(err),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
