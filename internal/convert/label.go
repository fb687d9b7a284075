package convert

import "strings"

// Canonical attack classes written to the cicids_attack column.
const (
	ClassBenign       = "BENIGN"
	ClassBot          = "Bot"
	ClassDDoS         = "DDoS"
	ClassDoS          = "DoS"
	ClassPortScan     = "Port Scan"
	ClassBruteForce   = "Brute Force"
	ClassWebAttack    = "Web Attack"
	ClassHeartbleed   = "Heartbleed"
	ClassInfiltration = "Infiltration"
)

// labelClasses is keyed by the upper-cased normalized label.
var labelClasses = map[string]string{
	"BENIGN":                     ClassBenign,
	"BOT":                        ClassBot,
	"DDOS":                       ClassDDoS,
	"PORTSCAN":                   ClassPortScan,
	"PORT SCAN":                  ClassPortScan,
	"SCANNING":                   ClassPortScan,
	"HEARTBLEED":                 ClassHeartbleed,
	"INFILTRATION":               ClassInfiltration,
	"FTP-PATATOR":                ClassBruteForce,
	"SSH-PATATOR":                ClassBruteForce,
	"BRUTE FORCE":                ClassBruteForce,
	"DOS HULK":                   ClassDoS,
	"DOS GOLDENEYE":              ClassDoS,
	"DOS SLOWLORIS":              ClassDoS,
	"DOS SLOWHTTPTEST":           ClassDoS,
	"DOS SLOWHTTP":               ClassDoS,
	"WEB ATTACK - BRUTE FORCE":   ClassWebAttack,
	"WEB ATTACK - XSS":           ClassWebAttack,
	"WEB ATTACK - SQL INJECTION": ClassWebAttack,
	"WEB ATTACK BRUTE FORCE":     ClassWebAttack,
	"WEB ATTACK XSS":             ClassWebAttack,
	"WEB ATTACK SQL INJECTION":   ClassWebAttack,
}

var labelCleaner = strings.NewReplacer(
	"\u2013", "-",
	"\u2014", "-",
	"\ufffd", " ",
)

// NormalizeLabel cleans encoding artifacts from a dataset label and maps it
// to its canonical class. known is false when the label is not in the
// vocabulary, in which case class is the cleaned label itself.
func NormalizeLabel(raw string) (normalized, class string, known bool) {
	normalized = strings.Join(strings.Fields(labelCleaner.Replace(raw)), " ")
	if c, ok := labelClasses[strings.ToUpper(normalized)]; ok {
		return normalized, c, true
	}
	return normalized, normalized, false
}
