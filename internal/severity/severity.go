// Package severity maps a malicious score and attack type to an alert level.
package severity

import "github.com/telhawk-systems/flowhawk/internal/models"

// Score thresholds, inclusive.
const (
	CriticalScore = 0.9
	HighScore     = 0.75
	MediumScore   = 0.4
)

// criticalTypes are always Critical.
var criticalTypes = map[models.AttackType]bool{
	models.AttackInfiltration: true,
	models.AttackOther:        true,
}

// highTypes are at least High.
var highTypes = map[models.AttackType]bool{
	models.AttackDoS:        true,
	models.AttackDDoS:       true,
	models.AttackBruteForce: true,
	models.AttackBot:        true,
	models.AttackXSS:        true,
	models.AttackSQLi:       true,
}

// Floors is the minimum level per attack type.
var Floors = map[models.AttackType]models.Severity{
	models.AttackDDoS:       models.SeverityCritical,
	models.AttackBruteForce: models.SeverityHigh,
	models.AttackPortScan:   models.SeverityMedium,
	models.AttackDoS:        models.SeverityMedium,
	models.AttackBenign:     models.SeverityLow,
}

// FromScore is the level the score alone earns.
func FromScore(score float64) models.Severity {
	switch {
	case score >= CriticalScore:
		return models.SeverityCritical
	case score >= HighScore:
		return models.SeverityHigh
	case score >= MediumScore:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Override is the level attack alone earns, or Low.
func Override(attack models.AttackType) models.Severity {
	switch {
	case criticalTypes[attack]:
		return models.SeverityCritical
	case highTypes[attack]:
		return models.SeverityHigh
	default:
		return models.SeverityLow
	}
}

// Floor is the minimum level for attack, Low when none is set.
func Floor(attack models.AttackType) models.Severity {
	if f, ok := Floors[attack]; ok {
		return f
	}
	return models.SeverityLow
}

// Evaluate returns the highest of the score level, the attack override and
// the attack floor.
func Evaluate(score float64, attack models.AttackType) models.Severity {
	return models.MaxSeverity(FromScore(score), Override(attack), Floor(attack))
}
