package repository

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

var ErrAlertNotFound = errors.New("alert not found")

// TopRulesLimit bounds the top rules ranking of an overview.
const TopRulesLimit = 5

// Repository defines the interface for alert persistence
type Repository interface {
	// CreateAlert stores a. An empty ID and a zero IngestedAt are assigned
	// and written back to a.
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, int, error)
	// ExportAlerts calls fn for every alert matching f in sort order,
	// ignoring paging.
	ExportAlerts(ctx context.Context, f models.AlertFilter, fn func(*models.Alert) error) error

	// Aggregates
	Overview(ctx context.Context, w models.TimeWindow, now time.Time) (*models.Overview, error)
	ModelPerformance(ctx context.Context, since time.Time) (*models.ModelPerformance, error)
	Total(ctx context.Context) (int, error)

	// Utility
	Ping(ctx context.Context) error
	Close() error
}

// hourlySeries returns the 24 hourly buckets ending with the hour of now,
// oldest first. counts is keyed by bucket start in UTC.
func hourlySeries(now time.Time, counts map[time.Time]int) []models.TimeBucket {
	end := now.UTC().Truncate(time.Hour)
	series := make([]models.TimeBucket, 0, 24)
	for offset := 23; offset >= 0; offset-- {
		b := end.Add(-time.Duration(offset) * time.Hour)
		series = append(series, models.TimeBucket{Bucket: b, Count: counts[b]})
	}
	return series
}

// emptySeverityCounts zero-fills every level.
func emptySeverityCounts() map[models.Severity]int {
	m := make(map[models.Severity]int, len(models.Severities))
	for _, s := range models.Severities {
		m[s] = 0
	}
	return m
}

func prepare(a *models.Alert, newID func() string, now time.Time) {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.IngestedAt.IsZero() {
		a.IngestedAt = now.UTC()
	}
	a.Timestamp = a.Timestamp.UTC()
	if a.Meta == nil {
		a.Meta = map[string]any{}
	}
}
