// Package service holds the alert and dataset use cases behind the HTTP
// handlers and the CLI.
package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/metrics"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/repository"
	"github.com/telhawk-systems/flowhawk/internal/stream"
)

// SourceAPI tags alerts created through the HTTP API.
const SourceAPI = "api"

// ExportColumns is the header of the CSV export.
var ExportColumns = []string{
	"id", "timestamp", "severity", "attack_type", "src_ip", "src_port",
	"dst_ip", "dst_port", "protocol", "rule_id", "rule_name", "model_score", "model_label",
}

// Indexer mirrors alerts into a search index.
type Indexer interface {
	Index(ctx context.Context, a models.Alert) error
}

// EventPublisher announces created alerts to other services.
type EventPublisher interface {
	PublishAlert(ctx context.Context, a models.Alert, source string) error
}

// AlertService persists alerts and fans them out to the index, the message
// bus and live stream subscribers.
type AlertService struct {
	repo    repository.Repository
	broker  *stream.Broker
	indexer Indexer
	events  EventPublisher
	logger  *logging.Logger
	now     func() time.Time

	startedAt time.Time
	created   atomic.Uint64
	failed    atomic.Uint64
}

// AlertOption configures an AlertService.
type AlertOption func(*AlertService)

// WithIndexer mirrors created alerts into idx.
func WithIndexer(idx Indexer) AlertOption {
	return func(s *AlertService) { s.indexer = idx }
}

// WithEventPublisher announces created alerts through p.
func WithEventPublisher(p EventPublisher) AlertOption {
	return func(s *AlertService) { s.events = p }
}

// WithClock overrides the clock used for rolling windows.
func WithClock(now func() time.Time) AlertOption {
	return func(s *AlertService) { s.now = now }
}

// NewAlertService creates a new AlertService. broker may be nil when no
// live stream is served.
func NewAlertService(repo repository.Repository, broker *stream.Broker, logger *logging.Logger, opts ...AlertOption) *AlertService {
	if logger == nil {
		logger = logging.Default()
	}
	s := &AlertService{
		repo:   repo,
		broker: broker,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now().UTC()
	return s
}

// CreateAlert stores a copy of a tagged with source. Index and bus failures
// are logged and counted; they never fail the call once the alert is
// persisted.
func (s *AlertService) CreateAlert(ctx context.Context, a models.Alert, source string) (*models.Alert, error) {
	meta := make(map[string]any, len(a.Meta)+1)
	for k, v := range a.Meta {
		meta[k] = v
	}
	meta[models.MetaSource] = source
	a.Meta = meta

	if err := s.repo.CreateAlert(ctx, &a); err != nil {
		s.failed.Add(1)
		metrics.StorageErrors.WithLabelValues("repository").Inc()
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	s.created.Add(1)
	metrics.AlertsCreated.WithLabelValues(source, string(a.Severity)).Inc()

	if s.indexer != nil {
		if err := s.indexer.Index(ctx, a); err != nil {
			metrics.StorageErrors.WithLabelValues("opensearch").Inc()
			s.logger.WarnContext(ctx, "failed to index alert", logging.AlertID(a.ID), logging.Error(err))
		}
	}
	if s.events != nil {
		if err := s.events.PublishAlert(ctx, a, source); err != nil {
			metrics.StorageErrors.WithLabelValues("nats").Inc()
			s.logger.WarnContext(ctx, "failed to publish alert event", logging.AlertID(a.ID), logging.Error(err))
		}
	}
	if s.broker != nil {
		s.broker.Publish(a)
	}
	return &a, nil
}

// GetAlert returns repository.ErrAlertNotFound for unknown ids.
func (s *AlertService) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	return s.repo.GetAlert(ctx, id)
}

// ListAlerts returns one page of alerts matching f.
func (s *AlertService) ListAlerts(ctx context.Context, f models.AlertFilter) (*models.AlertPage, error) {
	f.Normalize()
	items, total, err := s.repo.ListAlerts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	if items == nil {
		items = []*models.Alert{}
	}
	return &models.AlertPage{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// ExportCSV writes every alert matching f to w, ignoring paging.
func (s *AlertService) ExportCSV(ctx context.Context, f models.AlertFilter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}
	err := s.repo.ExportAlerts(ctx, f, func(a *models.Alert) error {
		return cw.Write([]string{
			a.ID,
			a.Timestamp.UTC().Format(time.RFC3339),
			string(a.Severity),
			string(a.AttackType),
			a.SrcIP,
			strconv.Itoa(a.SrcPort),
			a.DstIP,
			strconv.Itoa(a.DstPort),
			string(a.Protocol),
			a.RuleID,
			a.RuleName,
			strconv.FormatFloat(a.ModelScore, 'f', 4, 64),
			string(a.ModelLabel),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to export alerts: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// Overview aggregates alerts in w.
func (s *AlertService) Overview(ctx context.Context, w models.TimeWindow) (*models.Overview, error) {
	ov, err := s.repo.Overview(ctx, w, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to build overview: %w", err)
	}
	return ov, nil
}

// Last24h is the overview of the trailing 24 hours.
func (s *AlertService) Last24h(ctx context.Context) (*models.Overview, error) {
	since := s.now().UTC().Add(-24 * time.Hour)
	return s.Overview(ctx, models.TimeWindow{Since: &since})
}

// ModelPerformance summarizes classifier output since the given time. A zero
// since covers the trailing 24 hours.
func (s *AlertService) ModelPerformance(ctx context.Context, since time.Time) (*models.ModelPerformance, error) {
	if since.IsZero() {
		since = s.now().UTC().Add(-24 * time.Hour)
	}
	perf, err := s.repo.ModelPerformance(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute model performance: %w", err)
	}
	return perf, nil
}

// Subscribe attaches a live stream consumer. The caller must Unsubscribe.
func (s *AlertService) Subscribe() *stream.Subscription {
	return s.broker.Subscribe()
}

// Unsubscribe detaches sub.
func (s *AlertService) Unsubscribe(sub *stream.Subscription) {
	s.broker.Unsubscribe(sub)
}

// Total returns the number of stored alerts.
func (s *AlertService) Total(ctx context.Context) (int, error) {
	return s.repo.Total(ctx)
}

// Stats returns a snapshot of service counters.
type Stats struct {
	UptimeSeconds int64        `json:"uptime_seconds"`
	Created       uint64       `json:"created"`
	Failed        uint64       `json:"failed"`
	Stream        stream.Stats `json:"stream"`
}

// Health returns live status for health checks.
func (s *AlertService) Health() Stats {
	st := Stats{
		UptimeSeconds: int64(s.now().Sub(s.startedAt).Seconds()),
		Created:       s.created.Load(),
		Failed:        s.failed.Load(),
	}
	if s.broker != nil {
		st.Stream = s.broker.Stats()
	}
	return st
}

// Ping checks the repository.
func (s *AlertService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
