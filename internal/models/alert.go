package models

import (
	"strings"
	"time"
)

// Severity is an ordered alert level: Low < Medium < High < Critical.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Severities lists every level in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the position of s in the severity order; unknown values rank
// below Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// MaxSeverity returns the highest ranked of the given levels.
func MaxSeverity(levels ...Severity) Severity {
	best := SeverityLow
	for _, l := range levels {
		if l.Rank() > best.Rank() {
			best = l
		}
	}
	return best
}

// ParseSeverity accepts any casing of a severity name.
func ParseSeverity(s string) (Severity, bool) {
	for _, l := range Severities {
		if strings.EqualFold(string(l), strings.TrimSpace(s)) {
			return l, true
		}
	}
	return "", false
}

// AttackType is the coarse attack category attached to an alert.
type AttackType string

const (
	AttackBenign       AttackType = "benign"
	AttackDoS          AttackType = "dos"
	AttackDDoS         AttackType = "ddos"
	AttackPortScan     AttackType = "portscan"
	AttackBruteForce   AttackType = "bruteforce"
	AttackXSS          AttackType = "xss"
	AttackSQLi         AttackType = "sqli"
	AttackBot          AttackType = "bot"
	AttackInfiltration AttackType = "infiltration"
	AttackOther        AttackType = "other"
)

// AttackTypes lists every attack category.
var AttackTypes = []AttackType{
	AttackBenign, AttackDoS, AttackDDoS, AttackPortScan, AttackBruteForce,
	AttackXSS, AttackSQLi, AttackBot, AttackInfiltration, AttackOther,
}

var attackDisplay = map[AttackType]string{
	AttackBenign:       "Benign",
	AttackDoS:          "DoS",
	AttackDDoS:         "DDoS",
	AttackPortScan:     "PortScan",
	AttackBruteForce:   "BruteForce",
	AttackXSS:          "XSS",
	AttackSQLi:         "SQLi",
	AttackBot:          "Bot",
	AttackInfiltration: "Infiltration",
	AttackOther:        "Other",
}

// DisplayName returns the human readable spelling, e.g. "DDoS".
func (a AttackType) DisplayName() string {
	if name, ok := attackDisplay[a]; ok {
		return name
	}
	return attackDisplay[AttackOther]
}

// ParseAttackType accepts either the key ("bruteforce") or the display name
// ("BruteForce"), as well as spellings with separators ("BRUTE_FORCE").
func ParseAttackType(s string) (AttackType, bool) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(s)))
	for _, a := range AttackTypes {
		if string(a) == key {
			return a, true
		}
	}
	return "", false
}

// Protocol is the protocol column shown on an alert.
type Protocol string

const (
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolICMP  Protocol = "ICMP"
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolDNS   Protocol = "DNS"
	ProtocolOther Protocol = "Other"
)

// ProtocolFromValue maps a numeric or textual protocol to the alert column.
func ProtocolFromValue(v string) Protocol {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "6", "TCP":
		return ProtocolTCP
	case "17", "UDP":
		return ProtocolUDP
	case "1", "ICMP":
		return ProtocolICMP
	case "HTTP":
		return ProtocolHTTP
	case "HTTPS":
		return ProtocolHTTPS
	case "DNS":
		return ProtocolDNS
	default:
		return ProtocolOther
	}
}

// ModelLabel is the binary verdict of the classifier.
type ModelLabel string

const (
	LabelBenign    ModelLabel = "benign"
	LabelMalicious ModelLabel = "malicious"
)

// Alert is a classified network flow. Alerts are created once and never
// updated; consumers must treat Meta as read-only.
type Alert struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	IngestedAt time.Time      `json:"ingested_at"`
	Severity   Severity       `json:"severity"`
	AttackType AttackType     `json:"attack_type"`
	SrcIP      string         `json:"src_ip"`
	SrcPort    int            `json:"src_port"`
	DstIP      string         `json:"dst_ip"`
	DstPort    int            `json:"dst_port"`
	Protocol   Protocol       `json:"protocol"`
	RuleID     string         `json:"rule_id"`
	RuleName   string         `json:"rule_name"`
	ModelScore float64        `json:"model_score"`
	ModelLabel ModelLabel     `json:"model_label"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Well known metadata keys.
const (
	MetaSource        = "source"
	MetaFeatureRow    = "feature_row"
	MetaFeatures      = "features"
	MetaOriginalLabel = "original_label"
	MetaModel         = "model"
	MetaDatasetLabel  = "dataset_label"
	MetaDatasetSource = "dataset_source"
	MetaDatasetID     = "dataset_id"
	MetaSummary       = "summary"
	MetaPlaybook      = "playbook"
	MetaGeneratorSeed = "generator_seed"
)
