package normalize

import (
	"strconv"
	"strings"
)

const (
	ProtoTCP  = "tcp"
	ProtoUDP  = "udp"
	ProtoICMP = "icmp"

	// UnknownService marks a port with no known service.
	UnknownService = "-"
)

var protocolNumbers = map[int]string{
	1:  ProtoICMP,
	6:  ProtoTCP,
	17: ProtoUDP,
}

var protocolNames = map[string]int{
	ProtoICMP: 1,
	ProtoTCP:  6,
	ProtoUDP:  17,
}

// applicationTransport maps application-layer names to their usual transport.
var applicationTransport = map[string]string{
	"http":  ProtoTCP,
	"https": ProtoTCP,
	"dns":   ProtoUDP,
}

var serviceByPort = map[int]string{
	20: "ftp", 21: "ftp",
	22: "ssh",
	23: "telnet",
	25: "smtp",
	53: "dns",
	67: "dhcp", 68: "dhcp",
	80:  "http",
	110: "pop3",
	123: "ntp",
	135: "msrpc",
	137: "netbios", 139: "netbios",
	143: "imap",
	389: "ldap",
	443: "https",
	445: "smb",
	465: "smtp", 587: "smtp",
	993:  "imap",
	995:  "pop3",
	1433: "mssql",
	1521: "oracle",
	2049: "nfs",
	3306: "mysql",
	3389: "rdp",
	5060: "sip",
	5432: "postgres",
	5900: "vnc",
	5985: "wsman",
	8080: "http-alt",
	8443: "https",
}

// NormalizeProtocol maps a numeric or textual protocol to a transport name
// and IANA number. Anything unrecognized is tcp/6.
func NormalizeProtocol(raw string) (name string, number int) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return ProtoTCP, 6
	}
	if n, err := strconv.Atoi(v); err == nil {
		if name, ok := protocolNumbers[n]; ok {
			return name, n
		}
		return ProtoTCP, 6
	}
	if n, ok := protocolNames[v]; ok {
		return v, n
	}
	if transport, ok := applicationTransport[v]; ok {
		return transport, protocolNames[transport]
	}
	return ProtoTCP, 6
}

// ServiceForPort guesses the application service listening on port.
func ServiceForPort(port int) string {
	if s, ok := serviceByPort[port]; ok {
		return s
	}
	return UnknownService
}
