package models

import "time"

// Sort orders accepted by AlertFilter.Sort. A leading "-" means descending.
const (
	SortTimestampAsc   = "timestamp"
	SortTimestampDesc  = "-timestamp"
	SortSeverityAsc    = "severity"
	SortSeverityDesc   = "-severity"
	SortModelScoreAsc  = "model_score"
	SortModelScoreDesc = "-model_score"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// AlertFilter selects alerts for listing. Empty slices match everything.
type AlertFilter struct {
	From        *time.Time
	To          *time.Time
	Severities  []Severity
	AttackTypes []AttackType
	Protocols   []Protocol
	// Query is a case-insensitive substring matched against endpoints, rule
	// and enum columns.
	Query    string
	Sort     string
	Page     int
	PageSize int
}

// Normalize clamps paging and defaults the sort order.
func (f *AlertFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	switch f.Sort {
	case SortTimestampAsc, SortTimestampDesc, SortSeverityAsc, SortSeverityDesc,
		SortModelScoreAsc, SortModelScoreDesc:
	default:
		f.Sort = SortTimestampDesc
	}
}

// Offset returns the number of rows skipped before the current page.
func (f *AlertFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// AlertPage is one page of a listing.
type AlertPage struct {
	Items    []*Alert `json:"items"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// TimeWindow bounds aggregate queries; nil ends are open.
type TimeWindow struct {
	Since *time.Time
	Until *time.Time
}

// Contains reports whether t falls inside the window (inclusive).
func (w TimeWindow) Contains(t time.Time) bool {
	if w.Since != nil && t.Before(*w.Since) {
		return false
	}
	if w.Until != nil && t.After(*w.Until) {
		return false
	}
	return true
}

// RuleCount is one entry of the top rules ranking.
type RuleCount struct {
	RuleName string `json:"rule_name"`
	Count    int    `json:"count"`
}

// TimeBucket is an hourly alert count.
type TimeBucket struct {
	Bucket time.Time `json:"bucket"`
	Count  int       `json:"count"`
}

// Overview aggregates alert statistics over a window.
type Overview struct {
	Total           int                `json:"total"`
	BySeverity      map[Severity]int   `json:"counts_by_severity"`
	ByAttackType    map[AttackType]int `json:"counts_by_attack_type"`
	TopRules        []RuleCount        `json:"top_rules"`
	AverageScore    float64            `json:"avg_model_score"`
	Malicious       int                `json:"malicious"`
	UniqueSources   int                `json:"unique_src_ips"`
	LatestTimestamp *time.Time         `json:"latest_timestamp,omitempty"`
	Last24h         []TimeBucket       `json:"last24h_series"`
}

// Dataset provenance recorded on simulated alerts.
const (
	DatasetSourceReference = "reference"
	DatasetSourceDefault   = "default"
	DatasetSourceUploaded  = "uploaded"
)

// Dataset is an uploaded or registered source of flow rows.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	SizeBytes int64     `json:"size_bytes"`
	Columns   []string  `json:"columns,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AttackTypeStat is the per attack type slice of model performance.
type AttackTypeStat struct {
	AttackType   AttackType `json:"attack_type"`
	Count        int        `json:"count"`
	AverageScore float64    `json:"avg_model_score"`
}

// DatasetCount counts alerts per dataset provenance.
type DatasetCount struct {
	Source string `json:"source"`
	Label  string `json:"label"`
	Count  int    `json:"count"`
}

// ModelPerformance summarizes classifier output since a point in time.
// Latency is the gap between an alert's flow timestamp and its ingestion.
type ModelPerformance struct {
	TotalAlerts      int              `json:"total_alerts"`
	AverageScore     float64          `json:"avg_model_score"`
	AverageLatencyMS float64          `json:"avg_latency_ms"`
	AttackTypes      []AttackTypeStat `json:"attack_type_stats"`
	Datasets         []DatasetCount   `json:"dataset_breakdown"`
}
