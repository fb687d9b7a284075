package classifier

import (
	"strings"
	"unicode"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

// classAttacks maps class-name keys (upper case, letters and digits only)
// to attack types.
var classAttacks = map[string]models.AttackType{
	"BENIGN":                models.AttackBenign,
	"DOS":                   models.AttackDoS,
	"DOSHULK":               models.AttackDoS,
	"DOSGOLDENEYE":          models.AttackDoS,
	"DOSSLOWLORIS":          models.AttackDoS,
	"DOSSLOWHTTPTEST":       models.AttackDoS,
	"DDOS":                  models.AttackDDoS,
	"PORTSCAN":              models.AttackPortScan,
	"BRUTEFORCE":            models.AttackBruteForce,
	"FTPPATATOR":            models.AttackBruteForce,
	"SSHPATATOR":            models.AttackBruteForce,
	"WEBATTACKBRUTEFORCE":   models.AttackBruteForce,
	"XSS":                   models.AttackXSS,
	"WEBATTACK":             models.AttackXSS,
	"WEBATTACKXSS":          models.AttackXSS,
	"SQLI":                  models.AttackSQLi,
	"SQLINJECTION":          models.AttackSQLi,
	"WEBATTACKSQLINJECTION": models.AttackSQLi,
	"BOT":                   models.AttackBot,
	"INFILTRATION":          models.AttackInfiltration,
	"HEARTBLEED":            models.AttackOther,
}

// AttackTypeForClass maps a classifier class name to an attack type.
// Unknown names are AttackOther.
func AttackTypeForClass(name string) models.AttackType {
	if a, ok := classAttacks[classKey(name)]; ok {
		return a
	}
	return models.AttackOther
}

// IsBenignClass reports whether name is the benign class.
func IsBenignClass(name string) bool {
	return classKey(name) == "BENIGN"
}

func classKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
