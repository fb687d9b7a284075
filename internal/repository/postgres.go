package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool, now: time.Now}, nil
}

const alertColumns = `id, timestamp, ingested_at, severity, attack_type, src_ip, src_port,
	dst_ip, dst_port, protocol, rule_id, rule_name, model_score, model_label, meta`

const selectColumns = `id::text, timestamp, ingested_at, severity, attack_type, src_ip, src_port,
	dst_ip, dst_port, protocol, rule_id, rule_name, model_score, model_label, meta`

// CreateAlert inserts an alert
func (r *PostgresRepository) CreateAlert(ctx context.Context, a *models.Alert) error {
	prepare(a, uuid.NewString, r.now())

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Timestamp, a.IngestedAt, string(a.Severity), string(a.AttackType),
		a.SrcIP, a.SrcPort, a.DstIP, a.DstPort, string(a.Protocol),
		a.RuleID, a.RuleName, a.ModelScore, string(a.ModelLabel), a.Meta,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by ID
func (r *PostgresRepository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAlertNotFound
	}

	query := `SELECT ` + selectColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListAlerts retrieves a filtered, sorted page of alerts
func (r *PostgresRepository) ListAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, int, error) {
	f.Normalize()
	whereClause, args, argPos := buildWhere(f)

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alerts %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	args = append(args, f.PageSize, f.Offset())
	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, selectColumns, whereClause, orderBy(f.Sort), argPos, argPos+1)

	alerts := []*models.Alert{}
	err := r.query(ctx, query, args, func(a *models.Alert) error {
		alerts = append(alerts, a)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, total, nil
}

// ExportAlerts streams every alert matching f
func (r *PostgresRepository) ExportAlerts(ctx context.Context, f models.AlertFilter, fn func(*models.Alert) error) error {
	f.Normalize()
	whereClause, args, _ := buildWhere(f)
	query := fmt.Sprintf(`SELECT %s FROM alerts %s ORDER BY %s`, selectColumns, whereClause, orderBy(f.Sort))

	if err := r.query(ctx, query, args, fn); err != nil {
		return fmt.Errorf("failed to export alerts: %w", err)
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args []interface{}, fn func(*models.Alert) error) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return fmt.Errorf("failed to scan alert: %w", err)
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

func buildWhere(f models.AlertFilter) (string, []interface{}, int) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if f.From != nil {
		whereClause += fmt.Sprintf(" AND timestamp >= $%d", argPos)
		args = append(args, *f.From)
		argPos++
	}
	if f.To != nil {
		whereClause += fmt.Sprintf(" AND timestamp <= $%d", argPos)
		args = append(args, *f.To)
		argPos++
	}
	if len(f.Severities) > 0 {
		whereClause += fmt.Sprintf(" AND severity = ANY($%d)", argPos)
		args = append(args, toStrings(f.Severities))
		argPos++
	}
	if len(f.AttackTypes) > 0 {
		whereClause += fmt.Sprintf(" AND attack_type = ANY($%d)", argPos)
		args = append(args, toStrings(f.AttackTypes))
		argPos++
	}
	if len(f.Protocols) > 0 {
		whereClause += fmt.Sprintf(" AND protocol = ANY($%d)", argPos)
		args = append(args, toStrings(f.Protocols))
		argPos++
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		whereClause += fmt.Sprintf(` AND (
			LOWER(src_ip) LIKE $%[1]d OR LOWER(dst_ip) LIKE $%[1]d OR
			LOWER(rule_name) LIKE $%[1]d OR LOWER(rule_id) LIKE $%[1]d OR
			LOWER(attack_type) LIKE $%[1]d OR LOWER(severity) LIKE $%[1]d OR
			LOWER(protocol) LIKE $%[1]d OR LOWER(model_label) LIKE $%[1]d OR
			CAST(model_score AS TEXT) LIKE $%[1]d)`, argPos)
		args = append(args, "%"+q+"%")
		argPos++
	}
	return whereClause, args, argPos
}

const severityRank = `CASE severity WHEN 'Low' THEN 0 WHEN 'Medium' THEN 1 WHEN 'High' THEN 2 WHEN 'Critical' THEN 3 END`

func orderBy(sort string) string {
	var primary string
	switch sort {
	case models.SortTimestampAsc:
		primary = "timestamp ASC"
	case models.SortSeverityAsc:
		primary = severityRank + " ASC"
	case models.SortSeverityDesc:
		primary = severityRank + " DESC"
	case models.SortModelScoreAsc:
		primary = "model_score ASC"
	case models.SortModelScoreDesc:
		primary = "model_score DESC"
	default:
		primary = "timestamp DESC"
	}
	return primary + ", timestamp DESC, id"
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var (
		a                                          models.Alert
		severity, attackType, protocol, modelLabel string
	)
	err := row.Scan(
		&a.ID, &a.Timestamp, &a.IngestedAt, &severity, &attackType, &a.SrcIP, &a.SrcPort,
		&a.DstIP, &a.DstPort, &protocol, &a.RuleID, &a.RuleName, &a.ModelScore, &modelLabel, &a.Meta,
	)
	if err != nil {
		return nil, err
	}
	a.Timestamp = a.Timestamp.UTC()
	a.IngestedAt = a.IngestedAt.UTC()
	a.Severity = models.Severity(severity)
	a.AttackType = models.AttackType(attackType)
	a.Protocol = models.Protocol(protocol)
	a.ModelLabel = models.ModelLabel(modelLabel)
	return &a, nil
}

func windowClause(w models.TimeWindow, argPos int) (string, []interface{}) {
	clause := "WHERE 1=1"
	var args []interface{}
	if w.Since != nil {
		clause += fmt.Sprintf(" AND timestamp >= $%d", argPos)
		args = append(args, *w.Since)
		argPos++
	}
	if w.Until != nil {
		clause += fmt.Sprintf(" AND timestamp <= $%d", argPos)
		args = append(args, *w.Until)
	}
	return clause, args
}

// Overview aggregates alerts inside w; the hourly series always covers the
// 24 hours before now.
func (r *PostgresRepository) Overview(ctx context.Context, w models.TimeWindow, now time.Time) (*models.Overview, error) {
	where, args := windowClause(w, 1)
	ov := &models.Overview{
		BySeverity:   emptySeverityCounts(),
		ByAttackType: map[models.AttackType]int{},
		TopRules:     []models.RuleCount{},
	}

	summary := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(AVG(model_score), 0),
			COUNT(*) FILTER (WHERE model_label = 'malicious'),
			COUNT(DISTINCT src_ip)
		FROM alerts %s
	`, where)
	if err := r.pool.QueryRow(ctx, summary, args...).Scan(
		&ov.Total, &ov.AverageScore, &ov.Malicious, &ov.UniqueSources,
	); err != nil {
		return nil, fmt.Errorf("failed to summarize alerts: %w", err)
	}

	err := r.groupCount(ctx, fmt.Sprintf(`SELECT severity, COUNT(*) FROM alerts %s GROUP BY severity`, where), args,
		func(key string, n int) { ov.BySeverity[models.Severity(key)] = n })
	if err != nil {
		return nil, fmt.Errorf("failed to count by severity: %w", err)
	}

	err = r.groupCount(ctx, fmt.Sprintf(`SELECT attack_type, COUNT(*) FROM alerts %s GROUP BY attack_type`, where), args,
		func(key string, n int) { ov.ByAttackType[models.AttackType(key)] = n })
	if err != nil {
		return nil, fmt.Errorf("failed to count by attack type: %w", err)
	}

	topRules := fmt.Sprintf(`
		SELECT rule_name, COUNT(*) FROM alerts %s
		GROUP BY rule_name
		ORDER BY COUNT(*) DESC, rule_name
		LIMIT %d
	`, where, TopRulesLimit)
	err = r.groupCount(ctx, topRules, args, func(key string, n int) {
		ov.TopRules = append(ov.TopRules, models.RuleCount{RuleName: key, Count: n})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank rules: %w", err)
	}

	var latest *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MAX(timestamp) FROM alerts`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to get latest timestamp: %w", err)
	}
	if latest != nil {
		t := latest.UTC()
		ov.LatestTimestamp = &t
	}

	buckets := map[time.Time]int{}
	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('hour', timestamp AT TIME ZONE 'UTC'), COUNT(*)
		FROM alerts
		WHERE timestamp >= $1
		GROUP BY 1
	`, now.UTC().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to build hourly series: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			bucket time.Time
			n      int
		)
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, fmt.Errorf("failed to scan hourly bucket: %w", err)
		}
		buckets[time.Date(bucket.Year(), bucket.Month(), bucket.Day(), bucket.Hour(), 0, 0, 0, time.UTC)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	ov.Last24h = hourlySeries(now, buckets)

	return ov, nil
}

func (r *PostgresRepository) groupCount(ctx context.Context, query string, args []interface{}, fn func(string, int)) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		fn(key, n)
	}
	return rows.Err()
}

// ModelPerformance summarizes alerts stamped at or after since
func (r *PostgresRepository) ModelPerformance(ctx context.Context, since time.Time) (*models.ModelPerformance, error) {
	perf := &models.ModelPerformance{AttackTypes: []models.AttackTypeStat{}, Datasets: []models.DatasetCount{}}

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(model_score), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (ingested_at - timestamp)) * 1000), 0)
		FROM alerts WHERE timestamp >= $1
	`, since).Scan(&perf.TotalAlerts, &perf.AverageScore, &perf.AverageLatencyMS)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize model performance: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT attack_type, COUNT(*), AVG(model_score)
		FROM alerts WHERE timestamp >= $1
		GROUP BY attack_type
		ORDER BY attack_type
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to group by attack type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			st         models.AttackTypeStat
			attackType string
		)
		if err := rows.Scan(&attackType, &st.Count, &st.AverageScore); err != nil {
			return nil, fmt.Errorf("failed to scan attack type stat: %w", err)
		}
		st.AttackType = models.AttackType(attackType)
		perf.AttackTypes = append(perf.AttackTypes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	dsRows, err := r.pool.Query(ctx, `
		SELECT COALESCE(meta->>'dataset_source', ''), COALESCE(meta->>'dataset_label', ''), COUNT(*)
		FROM alerts WHERE timestamp >= $1
		GROUP BY 1, 2
		ORDER BY 1, 2
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to group by dataset: %w", err)
	}
	defer dsRows.Close()
	for dsRows.Next() {
		var dc models.DatasetCount
		if err := dsRows.Scan(&dc.Source, &dc.Label, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan dataset count: %w", err)
		}
		perf.Datasets = append(perf.Datasets, dc)
	}
	if err := dsRows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return perf, nil
}

// Total counts every stored alert
func (r *PostgresRepository) Total(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
