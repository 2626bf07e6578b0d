// Package privacy keeps personally identifiable information out of logs and
// audit trails.
package privacy

import (
	"fmt"
	"net"
)

// AnonymizeIP strips the host-identifying portion of an IP address before it
// is logged. IPv4 addresses lose the last octet ("192.168.1.47" becomes
// "192.168.1.0"); IPv6 addresses are cut down to their /48 prefix.
//
// Returns "invalid" for unparseable input and "unknown" for empty strings.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	// IPv6 is 16 bytes; the /48 routing prefix is the first 6.
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}
