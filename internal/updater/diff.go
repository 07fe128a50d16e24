package updater

import (
	"fmt"
	"net/netip"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

// familyState tracks one address family while walking a hostname's record
// sets. satisfied means no create is needed at the end of the walk.
type familyState struct {
	rrType    dns.RecordType
	desired   sets.Set[netip.Addr]
	satisfied bool
	accepts   func(netip.Addr) bool
}

func newFamilyState(rrType dns.RecordType, desired sets.Set[netip.Addr], accepts func(netip.Addr) bool) *familyState {
	return &familyState{rrType: rrType, desired: desired, satisfied: desired.Len() == 0, accepts: accepts}
}

func (f *familyState) upsert(hostname string, ttl int64) dns.Change {
	values := make([]string, 0, f.desired.Len())
	for _, addr := range dns.Sorted(f.desired) {
		values = append(values, addr.String())
	}
	return dns.Change{
		Action: dns.ChangeActionUpsert,
		RecordSet: dns.RecordSet{
			Name:   dns.FQDN(hostname),
			Type:   f.rrType,
			TTL:    ttl,
			Values: values,
		},
	}
}

// DiffHostname computes the changes that bring hostname's A and AAAA record
// sets to desired with the given TTL. existing must be in listing order.
//
// At most one unrouted record set per type is kept and rewritten; other
// record sets of that type, routing-policy variants and CNAMEs are deleted.
// Other record types are left alone. Creates for families that found no
// record set to reuse come last, A before AAAA.
func DiffHostname(hostname string, existing []dns.RecordSet, desired dns.Addresses, ttl int64) ([]dns.Change, error) {
	v4 := newFamilyState(dns.RecordTypeA, desired.IPv4, netip.Addr.Is4)
	v6 := newFamilyState(dns.RecordTypeAAAA, desired.IPv6, netip.Addr.Is6)

	var changes []dns.Change
	for _, rs := range existing {
		var f *familyState
		switch rs.Type {
		case "":
			return nil, fmt.Errorf("record set %s: %w", rs.Name, dns.MissingReplyField("Type"))
		case dns.RecordTypeA:
			f = v4
		case dns.RecordTypeAAAA:
			f = v6
		case dns.RecordTypeCNAME:
			changes = append(changes, dns.Change{Action: dns.ChangeActionDelete, RecordSet: rs})
			continue
		default:
			continue
		}

		values, err := parseValues(rs, f.accepts)
		if err != nil {
			return nil, err
		}

		if !rs.Routed() && values.Equal(f.desired) && rs.TTL == ttl {
			f.satisfied = true
			continue
		}
		if f.satisfied || f.desired.Len() == 0 || rs.Routed() {
			changes = append(changes, dns.Change{Action: dns.ChangeActionDelete, RecordSet: rs})
			continue
		}
		changes = append(changes, f.upsert(hostname, ttl))
		f.satisfied = true
	}

	for _, f := range []*familyState{v4, v6} {
		if !f.satisfied {
			changes = append(changes, f.upsert(hostname, ttl))
		}
	}
	return changes, nil
}

func parseValues(rs dns.RecordSet, accepts func(netip.Addr) bool) (sets.Set[netip.Addr], error) {
	out := sets.New[netip.Addr]()
	for _, v := range rs.Values {
		addr, err := netip.ParseAddr(v)
		if err != nil || addr.Zone() != "" || !accepts(addr) {
			return nil, fmt.Errorf("%s record set %s: %w", rs.Type, rs.Name, dns.InvalidAddress(v))
		}
		out.Insert(addr)
	}
	return out, nil
}
