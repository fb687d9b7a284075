package synthetic

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/severity"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type memorySink struct {
	mu      sync.Mutex
	alerts  []models.Alert
	sources []string
	err     error
}

func (s *memorySink) CreateAlert(_ context.Context, a models.Alert, source string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.alerts = append(s.alerts, a)
	s.sources = append(s.sources, source)
	return &a, nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(7, clock).Batch(50)
	b := NewGenerator(7, clock).Batch(50)
	assert.Equal(t, a, b)

	c := NewGenerator(8, clock).Batch(50)
	assert.NotEqual(t, a, c)
}

func TestGenerator_AlertShape(t *testing.T) {
	_, tenNet, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)

	for _, a := range NewGenerator(DefaultSeed, clock).Batch(500) {
		assert.Equal(t, severity.Evaluate(a.ModelScore, a.AttackType), a.Severity, "severity follows policy")
		assert.GreaterOrEqual(t, a.ModelScore, minScore)
		assert.LessOrEqual(t, a.ModelScore, maxScore)

		assert.True(t, tenNet.Contains(net.ParseIP(a.SrcIP)), a.SrcIP)
		assert.True(t, tenNet.Contains(net.ParseIP(a.DstIP)), a.DstIP)
		assert.GreaterOrEqual(t, a.SrcPort, 1024)

		assert.False(t, a.Timestamp.After(fixedNow))
		assert.False(t, a.Timestamp.Before(fixedNow.Add(-maxAge)))

		assert.True(t, strings.HasPrefix(a.RuleID, "RULE-"))
		assert.Equal(t, string(a.AttackType)+" Detection", a.RuleName)

		label := a.Meta[models.MetaDatasetLabel].(string)
		assert.Equal(t, labelAttacks[label], a.AttackType)
		if label == "BENIGN" {
			assert.Equal(t, models.LabelBenign, a.ModelLabel)
		}
		assert.Equal(t, int64(DefaultSeed), a.Meta[models.MetaGeneratorSeed])
		assert.NotEmpty(t, a.Meta[models.MetaSummary])

		if ports, ok := portsByAttack[a.AttackType]; ok {
			assert.Contains(t, ports, a.DstPort)
		}
		if a.AttackType == models.AttackPortScan {
			assert.LessOrEqual(t, a.DstPort, 1024)
		}
	}
}

func TestGenerator_FollowsClassDistribution(t *testing.T) {
	counts := map[models.AttackType]int{}
	for _, a := range NewGenerator(1, clock).Batch(2000) {
		counts[a.AttackType]++
	}
	// BENIGN is roughly 83% of CICIDS2017.
	assert.Greater(t, counts[models.AttackBenign], 1500)
	assert.Greater(t, counts[models.AttackDoS], 0)
}

func TestGenerator_DDoSAlwaysCritical(t *testing.T) {
	seen := false
	for _, a := range NewGenerator(3, clock).Batch(3000) {
		if a.AttackType == models.AttackDDoS {
			seen = true
			assert.Equal(t, models.SeverityCritical, a.Severity)
		}
	}
	assert.True(t, seen)
}

func TestRunner_SeedInitial(t *testing.T) {
	sink := &memorySink{}
	r := NewRunner(NewGenerator(1, clock), sink, DefaultRatePerMin, logging.Discard())

	n, err := r.SeedInitial(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Equal(t, 25, sink.count())
	for _, src := range sink.sources {
		assert.Equal(t, SourceSeed, src)
	}
}

func TestRunner_SeedInitial_SinkError(t *testing.T) {
	sink := &memorySink{err: errors.New("db down")}
	r := NewRunner(NewGenerator(1, clock), sink, DefaultRatePerMin, logging.Discard())

	n, err := r.SeedInitial(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, 0, n)
}

func TestRunner_StartStop(t *testing.T) {
	sink := &memorySink{}
	r := NewRunner(NewGenerator(1, clock), sink, 12, logging.Discard())

	assert.Equal(t, Status{Enabled: false, RatePerMin: 12}, r.Status())

	_, err := r.Start(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidRate)

	started, err := r.Start(context.Background(), 6000)
	require.NoError(t, err)
	assert.True(t, started)

	again, err := r.Start(context.Background(), 6000)
	require.NoError(t, err)
	assert.False(t, again, "same rate is a no-op")

	assert.Eventually(t, func() bool { return sink.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Status{Enabled: true, RatePerMin: 6000}, r.Status())

	restarted, err := r.Start(context.Background(), 3000)
	require.NoError(t, err)
	assert.True(t, restarted)

	assert.True(t, r.Stop())
	assert.False(t, r.Stop())
	assert.False(t, r.Status().Enabled)

	stopped := sink.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, sink.count(), "no alerts after stop")
	for _, src := range sink.sources {
		assert.Equal(t, SourceLive, src)
	}
}

func TestRunner_SetEnabled(t *testing.T) {
	r := NewRunner(NewGenerator(1, clock), &memorySink{}, 60, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	st, err := r.SetEnabled(ctx, true, 0)
	require.NoError(t, err)
	assert.Equal(t, Status{Enabled: true, RatePerMin: 60}, st)

	cancel()
	assert.True(t, r.Status().Enabled, "emitter outlives the caller context")

	st, err = r.SetEnabled(context.Background(), false, 0)
	require.NoError(t, err)
	assert.False(t, st.Enabled)
}
