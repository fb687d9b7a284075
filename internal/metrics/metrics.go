package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Row pipeline metrics
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowhawk_rows_total",
			Help: "Total number of source rows processed",
		},
		[]string{"kind", "status"},
	)

	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowhawk_rows_skipped_total",
			Help: "Total number of rows skipped during conversion",
		},
		[]string{"reason"},
	)

	// Classifier metrics
	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowhawk_prediction_duration_seconds",
			Help:    "Duration of a single classifier prediction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowhawk_predictions_total",
			Help: "Total number of predictions by attack type",
		},
		[]string{"attack_type"},
	)

	// Alert metrics
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowhawk_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"source", "severity"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowhawk_storage_errors_total",
			Help: "Total number of alert sink errors",
		},
		[]string{"sink"},
	)

	// Stream metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowhawk_stream_subscribers",
			Help: "Number of live stream subscribers",
		},
	)

	StreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowhawk_stream_dropped_total",
			Help: "Total number of alerts evicted from full subscriber queues",
		},
	)

	// Synthetic generator metrics
	SyntheticEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowhawk_synthetic_enabled",
			Help: "Whether live synthetic emission is running",
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowhawk_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowhawk_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
