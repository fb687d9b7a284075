// Package synthetic manufactures plausible alerts by replaying the CICIDS2017
// class distribution. It is a fallback alert source for demos and empty
// installations, not part of the classification pipeline.
package synthetic

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/flowhawk/internal/alert"
	"github.com/telhawk-systems/flowhawk/internal/classifier"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/severity"
)

const (
	DefaultSeed = 42

	minScore = 0.01
	maxScore = 0.999
	// maxAge bounds how far in the past a generated alert may be stamped.
	maxAge = 120 * time.Minute
)

// Generator draws synthetic alerts. It is safe for concurrent use; output is
// deterministic for a seed and call order.
type Generator struct {
	mu        sync.Mutex
	faker     *gofakeit.Faker
	seed      int64
	assembler *alert.Assembler
	now       alert.Clock
	labels    []any
	weights   []float32
}

// NewGenerator returns a Generator seeded with seed. A nil clock means
// time.Now in UTC.
func NewGenerator(seed int64, now alert.Clock) *Generator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	g := &Generator{
		faker:     gofakeit.New(seed),
		seed:      seed,
		assembler: alert.NewAssembler(now),
		now:       now,
	}
	var total float64
	for _, lc := range cicidsCounts {
		total += float64(lc.count)
	}
	for _, lc := range cicidsCounts {
		g.labels = append(g.labels, lc.label)
		g.weights = append(g.weights, float32(float64(lc.count)/total))
	}
	return g
}

// Seed returns the seed the generator was built with.
func (g *Generator) Seed() int64 {
	return g.seed
}

// Next returns one alert.
func (g *Generator) Next() models.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()

	label := g.drawLabel()
	attack, ok := labelAttacks[label]
	if !ok {
		attack = models.AttackOther
	}

	// The uniform draw picks a severity band and the score is then sampled
	// around that band.
	band := severity.Evaluate(g.faker.Float64(), attack)
	score := g.score(band)

	modelLabel := models.LabelBenign
	if label != "BENIGN" && score >= 0.5 {
		modelLabel = models.LabelMalicious
	}

	ts := g.now().Add(-time.Duration(g.faker.Number(0, int(maxAge/time.Minute))) * time.Minute)

	summary, ok := Summaries[attack]
	if !ok {
		summary = Summaries[models.AttackOther]
	}
	playbook := Playbooks[attack]
	if playbook == nil {
		playbook = []string{}
	}

	return g.assembler.Assemble(alert.Input{
		Timestamp: ts,
		SrcIP:     g.privateIP(),
		SrcPort:   g.faker.Number(1024, 65535),
		DstIP:     g.privateIP(),
		DstPort:   g.port(attack),
		Protocol:  g.protocol(attack),
		RuleID:    fmt.Sprintf("RULE-%d", g.faker.Number(1000, 9999)),
		RuleName:  fmt.Sprintf("%s Detection", attack),
		Prediction: classifier.Prediction{
			ClassName:  label,
			ClassIndex: -1,
			AttackType: attack,
			Score:      score,
			Label:      modelLabel,
		},
		Meta: map[string]any{
			models.MetaDatasetLabel:  label,
			models.MetaSummary:       summary,
			models.MetaPlaybook:      playbook,
			models.MetaGeneratorSeed: g.seed,
		},
	})
}

// Batch returns n alerts.
func (g *Generator) Batch(n int) []models.Alert {
	out := make([]models.Alert, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}

func (g *Generator) drawLabel() string {
	v, err := g.faker.Weighted(g.labels, g.weights)
	if err != nil {
		return "BENIGN"
	}
	return v.(string)
}

func (g *Generator) score(band models.Severity) float64 {
	d := scoreDistribution[band]
	s := d[0] + d[1]*g.faker.Rand.NormFloat64()
	return math.Max(minScore, math.Min(s, maxScore))
}

func (g *Generator) protocol(attack models.AttackType) models.Protocol {
	choices, ok := protocolsByAttack[attack]
	if !ok {
		choices = defaultProtocols
	}
	return choices[g.faker.Number(0, len(choices)-1)]
}

func (g *Generator) port(attack models.AttackType) int {
	if ports, ok := portsByAttack[attack]; ok {
		return g.faker.RandomInt(ports)
	}
	if attack == models.AttackPortScan {
		return g.faker.Number(1, 1024)
	}
	return g.faker.Number(1024, 65535)
}

// privateIP returns an address in 10.0.0.0/8.
func (g *Generator) privateIP() string {
	return fmt.Sprintf("10.%d.%d.%d", g.faker.Number(0, 255), g.faker.Number(0, 255), g.faker.Number(0, 255))
}
