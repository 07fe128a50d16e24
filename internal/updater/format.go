package updater

import (
	"fmt"
	"strings"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

// BatchComment is the comment attached to a zone's change batch.
func BatchComment(hostnames []string) string {
	return "Route 53 update for " + strings.Join(hostnames, " ")
}

// FormatChanges returns a human-readable listing of changes, one per line.
func FormatChanges(changes []dns.Change) string {
	var b strings.Builder
	for _, c := range changes {
		rs := c.RecordSet
		fmt.Fprintf(&b, "%s %s %s", c.Action, rs.Type, rs.Name)
		if rs.SetIdentifier != "" {
			fmt.Fprintf(&b, " setIdentifier=%s", rs.SetIdentifier)
		}
		if rs.TTL > 0 {
			fmt.Fprintf(&b, " ttl=%d", rs.TTL)
		}
		fmt.Fprintf(&b, " [%s]\n", strings.Join(rs.Values, ", "))
	}
	return b.String()
}
