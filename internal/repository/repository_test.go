package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

var base = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func fixture() []*models.Alert {
	return []*models.Alert{
		{
			Timestamp: base.Add(-10 * time.Minute), Severity: models.SeverityCritical, AttackType: models.AttackDDoS,
			SrcIP: "10.0.0.1", DstIP: "10.0.0.9", DstPort: 80, Protocol: models.ProtocolTCP,
			RuleID: "FLOW-a", RuleName: "FlowClassifier DDoS", ModelScore: 0.97, ModelLabel: models.LabelMalicious,
			Meta: map[string]any{models.MetaDatasetSource: "reference", models.MetaDatasetLabel: "Reference dataset"},
		},
		{
			Timestamp: base.Add(-70 * time.Minute), Severity: models.SeverityMedium, AttackType: models.AttackPortScan,
			SrcIP: "10.0.0.2", DstIP: "10.0.0.9", DstPort: 22, Protocol: models.ProtocolUDP,
			RuleID: "FLOW-b", RuleName: "FlowClassifier PortScan", ModelScore: 0.45, ModelLabel: models.LabelMalicious,
		},
		{
			Timestamp: base.Add(-30 * time.Hour), Severity: models.SeverityLow, AttackType: models.AttackBenign,
			SrcIP: "10.0.0.1", DstIP: "10.0.0.8", DstPort: 443, Protocol: models.ProtocolHTTPS,
			RuleID: "FLOW-c", RuleName: "FlowClassifier BENIGN", ModelScore: 0.05, ModelLabel: models.LabelBenign,
		},
		{
			Timestamp: base.Add(-2 * time.Hour), Severity: models.SeverityCritical, AttackType: models.AttackDDoS,
			SrcIP: "10.0.0.3", DstIP: "10.0.0.9", DstPort: 443, Protocol: models.ProtocolTCP,
			RuleID: "FLOW-d", RuleName: "FlowClassifier DDoS", ModelScore: 0.92, ModelLabel: models.LabelMalicious,
		},
	}
}

func seed(t *testing.T, repo Repository) []*models.Alert {
	t.Helper()
	alerts := fixture()
	for _, a := range alerts {
		require.NoError(t, repo.CreateAlert(context.Background(), a))
	}
	return alerts
}

func ids(alerts []*models.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.RuleID
	}
	return out
}

// runRepositorySuite checks behavior every Repository must share.
func runRepositorySuite(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		a := fixture()[0]
		require.NoError(t, repo.CreateAlert(ctx, a))
		_, err := uuid.Parse(a.ID)
		require.NoError(t, err)
		assert.False(t, a.IngestedAt.IsZero())

		got, err := repo.GetAlert(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.RuleID, got.RuleID)
		assert.Equal(t, a.Severity, got.Severity)
		assert.True(t, a.Timestamp.Equal(got.Timestamp))
		assert.Equal(t, "reference", got.Meta[models.MetaDatasetSource])

		_, err = repo.GetAlert(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrAlertNotFound)
		_, err = repo.GetAlert(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrAlertNotFound)

		n, err := repo.Total(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("list filters and sorts", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		items, total, err := repo.ListAlerts(ctx, models.AlertFilter{})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Equal(t, []string{"FLOW-a", "FLOW-b", "FLOW-d", "FLOW-c"}, ids(items), "newest first by default")

		items, total, err = repo.ListAlerts(ctx, models.AlertFilter{Severities: []models.Severity{models.SeverityCritical}})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.ElementsMatch(t, []string{"FLOW-a", "FLOW-d"}, ids(items))

		items, _, err = repo.ListAlerts(ctx, models.AlertFilter{Protocols: []models.Protocol{models.ProtocolUDP, models.ProtocolHTTPS}})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"FLOW-b", "FLOW-c"}, ids(items))

		items, _, err = repo.ListAlerts(ctx, models.AlertFilter{Query: "PORTSCAN"})
		require.NoError(t, err)
		assert.Equal(t, []string{"FLOW-b"}, ids(items))

		items, _, err = repo.ListAlerts(ctx, models.AlertFilter{Query: "10.0.0.1", AttackTypes: []models.AttackType{models.AttackBenign}})
		require.NoError(t, err)
		assert.Equal(t, []string{"FLOW-c"}, ids(items))

		from, to := base.Add(-3*time.Hour), base.Add(-time.Hour)
		items, _, err = repo.ListAlerts(ctx, models.AlertFilter{From: &from, To: &to})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"FLOW-b", "FLOW-d"}, ids(items))

		items, _, err = repo.ListAlerts(ctx, models.AlertFilter{Sort: models.SortSeverityAsc})
		require.NoError(t, err)
		assert.Equal(t, "FLOW-c", items[0].RuleID)
		assert.Equal(t, models.SeverityCritical, items[3].Severity)

		items, _, err = repo.ListAlerts(ctx, models.AlertFilter{Sort: models.SortModelScoreDesc})
		require.NoError(t, err)
		assert.Equal(t, []string{"FLOW-a", "FLOW-d", "FLOW-b", "FLOW-c"}, ids(items))

		items, total, err = repo.ListAlerts(ctx, models.AlertFilter{Page: 2, PageSize: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Equal(t, []string{"FLOW-c"}, ids(items))

		items, _, err = repo.ListAlerts(ctx, models.AlertFilter{Page: 9, PageSize: 3})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("export ignores paging", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		var got []*models.Alert
		err := repo.ExportAlerts(ctx, models.AlertFilter{PageSize: 1, Sort: models.SortTimestampAsc}, func(a *models.Alert) error {
			got = append(got, a)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"FLOW-c", "FLOW-d", "FLOW-b", "FLOW-a"}, ids(got))
	})

	t.Run("overview", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		since := base.Add(-24 * time.Hour)
		ov, err := repo.Overview(ctx, models.TimeWindow{Since: &since}, base)
		require.NoError(t, err)

		assert.Equal(t, 3, ov.Total)
		assert.Equal(t, map[models.Severity]int{
			models.SeverityLow: 0, models.SeverityMedium: 1, models.SeverityHigh: 0, models.SeverityCritical: 2,
		}, ov.BySeverity)
		assert.Equal(t, map[models.AttackType]int{models.AttackDDoS: 2, models.AttackPortScan: 1}, ov.ByAttackType)
		require.NotEmpty(t, ov.TopRules)
		assert.Equal(t, models.RuleCount{RuleName: "FlowClassifier DDoS", Count: 2}, ov.TopRules[0])
		assert.InDelta(t, (0.97+0.45+0.92)/3, ov.AverageScore, 1e-9)
		assert.Equal(t, 3, ov.Malicious)
		assert.Equal(t, 3, ov.UniqueSources)
		require.NotNil(t, ov.LatestTimestamp)
		assert.True(t, base.Add(-10*time.Minute).Equal(*ov.LatestTimestamp))

		require.Len(t, ov.Last24h, 24)
		last := ov.Last24h[23]
		assert.True(t, last.Bucket.Equal(base.Truncate(time.Hour)))
		assert.Equal(t, 1, last.Count)
		sum := 0
		for _, b := range ov.Last24h {
			sum += b.Count
		}
		assert.Equal(t, 3, sum)

		all, err := repo.Overview(ctx, models.TimeWindow{}, base)
		require.NoError(t, err)
		assert.Equal(t, 4, all.Total)
	})

	t.Run("model performance", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		perf, err := repo.ModelPerformance(ctx, base.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, perf.TotalAlerts)
		assert.Greater(t, perf.AverageLatencyMS, 0.0)
		require.Len(t, perf.AttackTypes, 2)
		assert.Equal(t, models.AttackDDoS, perf.AttackTypes[0].AttackType)
		assert.Equal(t, 2, perf.AttackTypes[0].Count)
		assert.Contains(t, perf.Datasets, models.DatasetCount{Source: "reference", Label: "Reference dataset", Count: 1})
		assert.Contains(t, perf.Datasets, models.DatasetCount{Source: "", Label: "", Count: 2})
	})
}

func TestHourlySeries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 59, 0, 0, time.UTC)
	series := hourlySeries(now, map[time.Time]int{
		time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC):  3,
		time.Date(2024, 4, 30, 13, 0, 0, 0, time.UTC): 1,
	})
	require.Len(t, series, 24)
	assert.Equal(t, time.Date(2024, 4, 30, 13, 0, 0, 0, time.UTC), series[0].Bucket)
	assert.Equal(t, 1, series[0].Count)
	assert.Equal(t, 3, series[23].Count)
}
