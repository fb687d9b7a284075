package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

// MemoryRepository keeps alerts in process memory. It backs tests and the
// "memory" database driver.
type MemoryRepository struct {
	mu     sync.RWMutex
	alerts []*models.Alert
	byID   map[string]*models.Alert
	now    func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID: make(map[string]*models.Alert),
		now:  time.Now,
	}
}

func (r *MemoryRepository) CreateAlert(ctx context.Context, a *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prepare(a, uuid.NewString, r.now())
	if _, dup := r.byID[a.ID]; dup {
		return fmt.Errorf("failed to create alert: duplicate id %s", a.ID)
	}
	cp := *a
	r.alerts = append(r.alerts, &cp)
	r.byID[cp.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, int, error) {
	f.Normalize()
	matched := r.match(f)

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepository) ExportAlerts(ctx context.Context, f models.AlertFilter, fn func(*models.Alert) error) error {
	f.Normalize()
	for _, a := range r.match(f) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// match returns sorted copies of the alerts selected by f.
func (r *MemoryRepository) match(f models.AlertFilter) []*models.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Alert
	for _, a := range r.alerts {
		if matches(a, f) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAlerts(out, f.Sort)
	return out
}

func matches(a *models.Alert, f models.AlertFilter) bool {
	if f.From != nil && a.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Timestamp.After(*f.To) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, a.Severity) {
		return false
	}
	if len(f.AttackTypes) > 0 && !contains(f.AttackTypes, a.AttackType) {
		return false
	}
	if len(f.Protocols) > 0 && !contains(f.Protocols, a.Protocol) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		for _, field := range searchable(a) {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

// searchable lists the columns the free-text query matches against.
func searchable(a *models.Alert) []string {
	return []string{
		a.SrcIP, a.DstIP, a.RuleName, a.RuleID,
		string(a.AttackType), string(a.Severity), string(a.Protocol), string(a.ModelLabel),
		fmt.Sprintf("%g", a.ModelScore),
	}
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func sortAlerts(alerts []*models.Alert, order string) {
	desc := strings.HasPrefix(order, "-")
	key := strings.TrimPrefix(order, "-")

	less := func(a, b *models.Alert) int {
		switch key {
		case models.SortSeverityAsc:
			return a.Severity.Rank() - b.Severity.Rank()
		case models.SortModelScoreAsc:
			switch {
			case a.ModelScore < b.ModelScore:
				return -1
			case a.ModelScore > b.ModelScore:
				return 1
			}
			return 0
		default:
			return a.Timestamp.Compare(b.Timestamp)
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		c := less(alerts[i], alerts[j])
		if c == 0 {
			// Newest first among equals, then by id for a stable page order.
			if t := alerts[i].Timestamp.Compare(alerts[j].Timestamp); t != 0 {
				return t > 0
			}
			return alerts[i].ID < alerts[j].ID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func (r *MemoryRepository) Overview(ctx context.Context, w models.TimeWindow, now time.Time) (*models.Overview, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ov := &models.Overview{
		BySeverity:   emptySeverityCounts(),
		ByAttackType: map[models.AttackType]int{},
		TopRules:     []models.RuleCount{},
	}
	rules := map[string]int{}
	sources := map[string]struct{}{}
	buckets := map[time.Time]int{}
	since24h := now.UTC().Add(-24 * time.Hour)
	var scoreSum float64

	for _, a := range r.alerts {
		if ov.LatestTimestamp == nil || a.Timestamp.After(*ov.LatestTimestamp) {
			ts := a.Timestamp
			ov.LatestTimestamp = &ts
		}
		if !a.Timestamp.Before(since24h) {
			buckets[a.Timestamp.UTC().Truncate(time.Hour)]++
		}
		if !w.Contains(a.Timestamp) {
			continue
		}
		ov.Total++
		ov.BySeverity[a.Severity]++
		ov.ByAttackType[a.AttackType]++
		rules[a.RuleName]++
		sources[a.SrcIP] = struct{}{}
		scoreSum += a.ModelScore
		if a.ModelLabel == models.LabelMalicious {
			ov.Malicious++
		}
	}

	if ov.Total > 0 {
		ov.AverageScore = scoreSum / float64(ov.Total)
	}
	ov.UniqueSources = len(sources)
	for name, n := range rules {
		ov.TopRules = append(ov.TopRules, models.RuleCount{RuleName: name, Count: n})
	}
	sort.Slice(ov.TopRules, func(i, j int) bool {
		if ov.TopRules[i].Count != ov.TopRules[j].Count {
			return ov.TopRules[i].Count > ov.TopRules[j].Count
		}
		return ov.TopRules[i].RuleName < ov.TopRules[j].RuleName
	})
	if len(ov.TopRules) > TopRulesLimit {
		ov.TopRules = ov.TopRules[:TopRulesLimit]
	}
	ov.Last24h = hourlySeries(now, buckets)
	return ov, nil
}

func (r *MemoryRepository) ModelPerformance(ctx context.Context, since time.Time) (*models.ModelPerformance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type acc struct {
		count int
		sum   float64
	}
	byType := map[models.AttackType]*acc{}
	byDataset := map[[2]string]int{}
	perf := &models.ModelPerformance{AttackTypes: []models.AttackTypeStat{}, Datasets: []models.DatasetCount{}}
	var scoreSum, latencySum float64

	for _, a := range r.alerts {
		if a.Timestamp.Before(since) {
			continue
		}
		perf.TotalAlerts++
		scoreSum += a.ModelScore
		latencySum += float64(a.IngestedAt.Sub(a.Timestamp).Milliseconds())

		t := byType[a.AttackType]
		if t == nil {
			t = &acc{}
			byType[a.AttackType] = t
		}
		t.count++
		t.sum += a.ModelScore

		src, _ := a.Meta[models.MetaDatasetSource].(string)
		label, _ := a.Meta[models.MetaDatasetLabel].(string)
		byDataset[[2]string{src, label}]++
	}

	if perf.TotalAlerts > 0 {
		perf.AverageScore = scoreSum / float64(perf.TotalAlerts)
		perf.AverageLatencyMS = latencySum / float64(perf.TotalAlerts)
	}
	for at, t := range byType {
		perf.AttackTypes = append(perf.AttackTypes, models.AttackTypeStat{
			AttackType: at, Count: t.count, AverageScore: t.sum / float64(t.count),
		})
	}
	sort.Slice(perf.AttackTypes, func(i, j int) bool { return perf.AttackTypes[i].AttackType < perf.AttackTypes[j].AttackType })
	for k, n := range byDataset {
		perf.Datasets = append(perf.Datasets, models.DatasetCount{Source: k[0], Label: k[1], Count: n})
	}
	sort.Slice(perf.Datasets, func(i, j int) bool {
		if perf.Datasets[i].Source != perf.Datasets[j].Source {
			return perf.Datasets[i].Source < perf.Datasets[j].Source
		}
		return perf.Datasets[i].Label < perf.Datasets[j].Label
	})
	return perf, nil
}

func (r *MemoryRepository) Total(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.alerts), nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
