package updater

import (
	"context"
	"fmt"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

// ListHostnameRecordSets returns the record sets at hostname in listing
// order. The listing starts at (hostname, A) and stops at the first record
// set with another name, since the provider sorts by name.
func ListHostnameRecordSets(ctx context.Context, api dns.ZoneAPI, zoneID, hostname string) ([]dns.RecordSet, error) {
	cursor := dns.RecordSetCursor{Name: dns.FQDN(hostname), Type: dns.RecordTypeA}

	var out []dns.RecordSet
	for {
		page, err := api.ListRecordSets(ctx, zoneID, cursor)
		if err != nil {
			return nil, fmt.Errorf("listing record sets for %s: %w", hostname, err)
		}
		if page == nil {
			return nil, fmt.Errorf("listing record sets for %s: %w", hostname, dns.MissingReplyField("ResourceRecordSets"))
		}

		for _, rs := range page.RecordSets {
			if !dns.SameName(rs.Name, hostname) {
				return out, nil
			}
			out = append(out, rs)
		}

		if !page.IsTruncated {
			return out, nil
		}
		if page.Next == nil || page.Next.Name == "" {
			return nil, fmt.Errorf("listing record sets for %s: %w", hostname, dns.MissingReplyField("NextRecordName"))
		}
		cursor = *page.Next
	}
}
