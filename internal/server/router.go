package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/flowhawk/common/middleware"
	"github.com/telhawk-systems/flowhawk/internal/handlers"
	"github.com/telhawk-systems/flowhawk/internal/metrics"
)

// uploadOverhead is the multipart framing allowed on top of the dataset
// size limit.
const uploadOverhead = 1 << 20

// RouterConfig holds what the router needs beyond the handlers.
type RouterConfig struct {
	MaxUploadBytes int64
}

// NewRouter constructs a chi router with the flowhawk API routes registered.
func NewRouter(h *handlers.Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", h.HealthCheck)
	r.Get("/readyz", h.ReadyCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Post("/", h.CreateAlert)
			r.Get("/export.csv", h.ExportAlerts)
			r.Get("/stats", h.AlertStats)
			r.Get("/stream", h.StreamAlerts)
			r.Get("/{id}", h.GetAlert)
		})

		r.Get("/dashboard", h.Dashboard)
		r.Get("/reports/summary", h.ReportSummary)
		r.Get("/model/performance", h.ModelPerformance)

		r.Route("/datasets", func(r chi.Router) {
			r.With(limitBody(cfg.MaxUploadBytes)).Post("/", h.UploadDataset)
			r.Get("/", h.ListDatasets)
			r.Get("/preview", h.PreviewDataset)
			r.Post("/simulate", h.SimulateDataset)
			r.Delete("/{id}", h.DeleteDataset)
		})

		r.Get("/synthetic", h.SyntheticStatus)
		r.Put("/synthetic", h.ToggleSynthetic)

		r.Get("/dlq", h.DLQStats)
		r.Get("/dlq/entries", h.ListDLQ)
		r.Delete("/dlq", h.PurgeDLQ)
	})

	return r
}

// limitBody caps request bodies at max plus multipart framing. A
// non-positive max leaves the body unbounded.
func limitBody(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if max > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, max+uploadOverhead)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// instrument records request counts and latency per route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
