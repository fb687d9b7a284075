package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/repository"
	"github.com/telhawk-systems/flowhawk/internal/service"
	"github.com/telhawk-systems/flowhawk/internal/stream"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingIndexer struct {
	indexed []models.Alert
	err     error
}

func (r *recordingIndexer) Index(ctx context.Context, a models.Alert) error {
	r.indexed = append(r.indexed, a)
	return r.err
}

type recordingEvents struct {
	sources []string
	err     error
}

func (r *recordingEvents) PublishAlert(ctx context.Context, a models.Alert, source string) error {
	r.sources = append(r.sources, source)
	return r.err
}

// failingRepository rejects every write.
type failingRepository struct {
	repository.Repository
}

func (failingRepository) CreateAlert(context.Context, *models.Alert) error {
	return errors.New("database is down")
}

func sampleAlert() models.Alert {
	return models.Alert{
		Timestamp:  fixedNow.Add(-time.Hour),
		Severity:   models.SeverityHigh,
		AttackType: models.AttackBruteForce,
		SrcIP:      "10.0.0.1",
		SrcPort:    51000,
		DstIP:      "10.0.0.2",
		DstPort:    22,
		Protocol:   models.ProtocolTCP,
		RuleID:     "FLOW-x",
		RuleName:   "FlowClassifier SSH-Patator",
		ModelScore: 0.87654,
		ModelLabel: models.LabelMalicious,
		Meta:       map[string]any{"k": "v"},
	}
}

func newAlertService(t *testing.T, opts ...service.AlertOption) (*service.AlertService, *stream.Broker) {
	t.Helper()
	broker := stream.NewBroker(10)
	opts = append([]service.AlertOption{service.WithClock(func() time.Time { return fixedNow })}, opts...)
	return service.NewAlertService(repository.NewMemoryRepository(), broker, logging.Discard(), opts...), broker
}

func TestAlertService_CreateAlert(t *testing.T) {
	idx := &recordingIndexer{}
	events := &recordingEvents{}
	svc, broker := newAlertService(t, service.WithIndexer(idx), service.WithEventPublisher(events))
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	in := sampleAlert()
	created, err := svc.CreateAlert(context.Background(), in, service.SourceAPI)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, service.SourceAPI, created.Meta[models.MetaSource])
	assert.Equal(t, "v", created.Meta["k"])
	assert.NotContains(t, in.Meta, models.MetaSource, "input metadata is not modified")

	stored, err := svc.GetAlert(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.RuleID, stored.RuleID)

	require.Len(t, idx.indexed, 1)
	assert.Equal(t, created.ID, idx.indexed[0].ID)
	assert.Equal(t, []string{service.SourceAPI}, events.sources)

	select {
	case got := <-sub.C():
		assert.Equal(t, created.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("alert was not streamed")
	}

	assert.Equal(t, uint64(1), svc.Health().Created)
}

func TestAlertService_CreateAlert_SideEffectFailuresAreNotFatal(t *testing.T) {
	idx := &recordingIndexer{err: errors.New("index down")}
	events := &recordingEvents{err: errors.New("bus down")}
	svc, _ := newAlertService(t, service.WithIndexer(idx), service.WithEventPublisher(events))

	_, err := svc.CreateAlert(context.Background(), sampleAlert(), "synthetic_live")
	require.NoError(t, err)

	n, err := svc.Total(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAlertService_CreateAlert_RepositoryFailure(t *testing.T) {
	broker := stream.NewBroker(10)
	sub := broker.Subscribe()
	svc := service.NewAlertService(failingRepository{}, broker, logging.Discard())

	_, err := svc.CreateAlert(context.Background(), sampleAlert(), service.SourceAPI)
	assert.ErrorContains(t, err, "database is down")
	assert.Equal(t, uint64(1), svc.Health().Failed)

	select {
	case <-sub.C():
		t.Fatal("failed alert must not be streamed")
	default:
	}
}

func TestAlertService_GetAlert_NotFound(t *testing.T) {
	svc, _ := newAlertService(t)
	_, err := svc.GetAlert(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrAlertNotFound)
}

func TestAlertService_ListAlerts(t *testing.T) {
	svc, _ := newAlertService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		a := sampleAlert()
		a.Timestamp = a.Timestamp.Add(time.Duration(i) * time.Minute)
		_, err := svc.CreateAlert(ctx, a, service.SourceAPI)
		require.NoError(t, err)
	}

	page, err := svc.ListAlerts(ctx, models.AlertFilter{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.PageSize)
	assert.Len(t, page.Items, 2)

	page, err = svc.ListAlerts(ctx, models.AlertFilter{PageSize: 10_000})
	require.NoError(t, err)
	assert.Equal(t, models.MaxPageSize, page.PageSize)

	page, err = svc.ListAlerts(ctx, models.AlertFilter{Severities: []models.Severity{models.SeverityLow}})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestAlertService_ExportCSV(t *testing.T) {
	svc, _ := newAlertService(t)
	created, err := svc.CreateAlert(context.Background(), sampleAlert(), service.SourceAPI)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), models.AlertFilter{}, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, service.ExportColumns, records[0])
	assert.Equal(t, []string{
		created.ID, "2024-05-01T11:00:00Z", "High", "bruteforce", "10.0.0.1", "51000",
		"10.0.0.2", "22", "TCP", "FLOW-x", "FlowClassifier SSH-Patator", "0.8765", "malicious",
	}, records[1])
}

func TestAlertService_Last24h(t *testing.T) {
	svc, _ := newAlertService(t)
	ctx := context.Background()

	recent := sampleAlert()
	old := sampleAlert()
	old.Timestamp = fixedNow.Add(-48 * time.Hour)
	for _, a := range []models.Alert{recent, old} {
		_, err := svc.CreateAlert(ctx, a, service.SourceAPI)
		require.NoError(t, err)
	}

	ov, err := svc.Last24h(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ov.Total)
	assert.Equal(t, 1, ov.BySeverity[models.SeverityHigh])
	assert.Len(t, ov.Last24h, 24)

	all, err := svc.Overview(ctx, models.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
}

func TestAlertService_ModelPerformance(t *testing.T) {
	svc, _ := newAlertService(t)
	ctx := context.Background()
	_, err := svc.CreateAlert(ctx, sampleAlert(), service.SourceAPI)
	require.NoError(t, err)

	perf, err := svc.ModelPerformance(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, perf.TotalAlerts)
	require.Len(t, perf.AttackTypes, 1)
	assert.Equal(t, models.AttackBruteForce, perf.AttackTypes[0].AttackType)
}
