package synthetic

import "github.com/telhawk-systems/flowhawk/internal/models"

// labelCount is one CICIDS2017 class with its row count in the dataset.
type labelCount struct {
	label string
	count int
}

// cicidsCounts weights label selection by the CICIDS2017 class frequencies.
var cicidsCounts = []labelCount{
	{"BENIGN", 2359087},
	{"DoS Hulk", 231072},
	{"PortScan", 158930},
	{"DDoS", 41835},
	{"DoS GoldenEye", 10293},
	{"FTP-Patator", 7938},
	{"SSH-Patator", 5897},
	{"DoS slowloris", 5796},
	{"DoS Slowhttptest", 5499},
	{"Bot", 1966},
	{"Web Attack \u2013 Brute Force", 1507},
	{"Web Attack \u2013 XSS", 652},
	{"Infiltration", 36},
	{"Web Attack \u2013 Sql Injection", 21},
	{"Heartbleed", 11},
}

var labelAttacks = map[string]models.AttackType{
	"BENIGN":                          models.AttackBenign,
	"DoS Hulk":                        models.AttackDoS,
	"PortScan":                        models.AttackPortScan,
	"DDoS":                            models.AttackDDoS,
	"DoS GoldenEye":                   models.AttackDoS,
	"FTP-Patator":                     models.AttackBruteForce,
	"SSH-Patator":                     models.AttackBruteForce,
	"DoS slowloris":                   models.AttackDoS,
	"DoS Slowhttptest":                models.AttackDoS,
	"Bot":                             models.AttackBot,
	"Web Attack \u2013 Brute Force":   models.AttackBruteForce,
	"Web Attack \u2013 XSS":           models.AttackXSS,
	"Infiltration":                    models.AttackInfiltration,
	"Web Attack \u2013 Sql Injection": models.AttackSQLi,
	"Heartbleed":                      models.AttackOther,
}

// Summaries describe each attack type for analysts.
var Summaries = map[models.AttackType]string{
	models.AttackDDoS:         "Distributed traffic spike aimed at the public service.",
	models.AttackDoS:          "Repetitive request pattern impacting service availability.",
	models.AttackPortScan:     "The source is enumerating open ports on protected segments.",
	models.AttackBruteForce:   "Mass authentication attempts against critical services.",
	models.AttackXSS:          "Attempt to inject malicious scripts into a web application.",
	models.AttackSQLi:         "Suspicious queries indicate an SQL injection attempt.",
	models.AttackBot:          "Bot-like malware activity communicating with a C2 server.",
	models.AttackInfiltration: "Lateral movement and data extraction were identified.",
	models.AttackBenign:       "Traffic classified as benign by the current model.",
	models.AttackOther:        "Activity outside the catalog, review the full flow.",
}

// Playbooks lists response steps per attack type. Benign and uncatalogued
// traffic has none.
var Playbooks = map[models.AttackType][]string{
	models.AttackDDoS: {
		"Enable DDoS mitigation at the edge and tighten rate limiting policies.",
		"Coordinate with the ISP to filter traffic from the suspicious source.",
		"Monitor availability metrics of the affected service every 5 minutes.",
	},
	models.AttackDoS: {
		"Apply temporary filters for the identified source.",
		"Check the health of the service and restart it if needed.",
		"Escalate to the network team if the pattern persists.",
	},
	models.AttackPortScan: {
		"Block the source IP at the perimeter firewall.",
		"Review IPS logs for follow-up exploitation.",
		"Notify the SOC to track the source.",
	},
	models.AttackBruteForce: {
		"Enable MFA on the targeted accounts if not already active.",
		"Temporarily block the source IP.",
		"Force a reset of affected passwords and audit access.",
	},
	models.AttackXSS: {
		"Add WAF rules blocking the detected payloads.",
		"Run static analysis on the application to validate sanitization.",
		"Review user logs to rule out session theft.",
	},
	models.AttackSQLi: {
		"Block queries with similar patterns in the WAF.",
		"Run a security scan on the affected application.",
		"Validate database integrity and enable backups.",
	},
	models.AttackInfiltration: {
		"Fully isolate the compromised host.",
		"Collect forensic artifacts for DFIR.",
		"Notify corporate security for containment.",
	},
	models.AttackBot: {
		"Disconnect the compromised host and run an antimalware scan.",
		"Revoke credentials used from the identified asset.",
		"Watch egress traffic towards known C2 domains.",
	},
}

var protocolsByAttack = map[models.AttackType][]models.Protocol{
	models.AttackDoS:          {models.ProtocolTCP, models.ProtocolUDP, models.ProtocolHTTP},
	models.AttackDDoS:         {models.ProtocolTCP, models.ProtocolUDP, models.ProtocolHTTP},
	models.AttackPortScan:     {models.ProtocolTCP, models.ProtocolUDP},
	models.AttackBruteForce:   {models.ProtocolTCP, models.ProtocolHTTP, models.ProtocolHTTPS},
	models.AttackXSS:          {models.ProtocolHTTP, models.ProtocolHTTPS},
	models.AttackSQLi:         {models.ProtocolHTTP, models.ProtocolHTTPS},
	models.AttackBot:          {models.ProtocolTCP, models.ProtocolHTTPS},
	models.AttackInfiltration: {models.ProtocolHTTPS, models.ProtocolTCP},
	models.AttackBenign:       {models.ProtocolHTTP, models.ProtocolHTTPS, models.ProtocolDNS, models.ProtocolTCP},
}

var defaultProtocols = []models.Protocol{
	models.ProtocolTCP, models.ProtocolUDP, models.ProtocolICMP,
	models.ProtocolHTTP, models.ProtocolHTTPS, models.ProtocolDNS,
}

var portsByAttack = map[models.AttackType][]int{
	models.AttackBruteForce: {21, 22, 3389, 5900},
	models.AttackXSS:        {80, 443, 8080},
	models.AttackSQLi:       {1433, 3306, 5432, 1521},
	models.AttackDDoS:       {80, 443, 53},
	models.AttackDoS:        {80, 443, 22},
}

// scoreDistribution is the mean and standard deviation of the model score
// drawn for each severity.
var scoreDistribution = map[models.Severity][2]float64{
	models.SeverityLow:      {0.2, 0.12},
	models.SeverityMedium:   {0.5, 0.12},
	models.SeverityHigh:     {0.8, 0.12},
	models.SeverityCritical: {0.95, 0.07},
}
