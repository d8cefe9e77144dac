package protocols

import "github.com/google/gopacket/layers"

// ReservedPort labels a destination port with no well-known service.
const ReservedPort = "Reserved/Unassigned"

var tcpPorts = map[uint16]string{
	20:    "FTP-DATA",
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	53:    "DNS",
	80:    "HTTP",
	110:   "POP3",
	143:   "IMAP",
	179:   "BGP",
	389:   "LDAP",
	443:   "HTTPS",
	445:   "SMB",
	465:   "SMTPS",
	587:   "SMTP-Submission",
	636:   "LDAPS",
	993:   "IMAPS",
	995:   "POP3S",
	1433:  "MSSQL",
	1883:  "MQTT",
	3306:  "MySQL",
	3389:  "RDP",
	5432:  "PostgreSQL",
	5900:  "VNC",
	6379:  "Redis",
	8080:  "HTTP-Alt",
	8443:  "HTTPS-Alt",
	9092:  "Kafka",
	27017: "MongoDB",
}

var udpPorts = map[uint16]string{
	53:    "DNS",
	67:    "DHCP-Server",
	68:    "DHCP-Client",
	69:    "TFTP",
	123:   "NTP",
	137:   "NetBIOS-NS",
	138:   "NetBIOS-DGM",
	161:   "SNMP",
	162:   "SNMP-Trap",
	443:   "QUIC",
	500:   "ISAKMP",
	514:   "Syslog",
	1900:  "SSDP",
	4500:  "IPsec-NAT-T",
	5353:  "mDNS",
	5355:  "LLMNR",
	51820: "WireGuard",
}

// LabelPort maps a destination port to its service name for TCP and UDP.
// srcPort is accepted for callers that have it but does not affect the result.
// Any other transport falls back to Label.
func LabelPort(transport layers.IPProtocol, srcPort, dstPort uint16) string {
	_ = srcPort
	switch transport {
	case layers.IPProtocolTCP, layers.IPProtocolUDP:
		if name, ok := Mapped(transport, dstPort); ok {
			return name
		}
		return ReservedPort
	default:
		return Label(transport)
	}
}

// Mapped reports the service name for dstPort, if the port table for
// transport has one.
func Mapped(transport layers.IPProtocol, dstPort uint16) (string, bool) {
	var table map[uint16]string
	switch transport {
	case layers.IPProtocolTCP:
		table = tcpPorts
	case layers.IPProtocolUDP:
		table = udpPorts
	default:
		return "", false
	}
	name, ok := table[dstPort]
	return name, ok
}
