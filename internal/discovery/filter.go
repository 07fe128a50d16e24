package discovery

import (
	"net/netip"
)

// Family is an IP address family.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Filter decides which discovered addresses are usable.
type Filter struct {
	IPv4             bool
	IPv6             bool
	AllowNonroutable bool
}

// Allows reports whether addr passes the family and routability settings.
// IPv4-mapped IPv6 addresses are judged as IPv4.
func (f Filter) Allows(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return false
	}
	if !f.AllowNonroutable && !IsGlobal(addr) {
		return false
	}
	if addr.Is4() {
		return f.IPv4
	}
	return f.IPv6
}

// Families returns the enabled families, IPv4 first.
func (f Filter) Families() []Family {
	var out []Family
	if f.IPv4 {
		out = append(out, IPv4)
	}
	if f.IPv6 {
		out = append(out, IPv6)
	}
	return out
}

var (
	nonGlobal4 = prefixes(
		"0.0.0.0/8",       // "this network"
		"10.0.0.0/8",      // private
		"100.64.0.0/10",   // shared address space
		"127.0.0.0/8",     // loopback
		"169.254.0.0/16",  // link-local
		"172.16.0.0/12",   // private
		"192.0.0.0/24",    // IETF protocol assignments
		"192.0.2.0/24",    // TEST-NET-1
		"192.168.0.0/16",  // private
		"198.18.0.0/15",   // benchmarking
		"198.51.100.0/24", // TEST-NET-2
		"203.0.113.0/24",  // TEST-NET-3
		"224.0.0.0/4",     // multicast
		"240.0.0.0/4",     // reserved, includes broadcast
	)
	global4 = prefixes(
		"192.0.0.9/32",  // PCP anycast
		"192.0.0.10/32", // TURN anycast
	)

	nonGlobal6 = prefixes(
		"::/128",         // unspecified
		"::1/128",        // loopback
		"64:ff9b:1::/48", // local-use IPv4/IPv6 translation
		"100::/64",       // discard-only
		"2001::/23",      // IETF protocol assignments
		"2001:db8::/32",  // documentation
		"3fff::/20",      // documentation
		"fc00::/7",       // unique local
		"fe80::/10",      // link-local
		"ff00::/8",       // multicast
	)
	global6 = prefixes(
		"2001:1::1/128",   // PCP anycast
		"2001:1::2/128",   // TURN anycast
		"2001:3::/32",     // AMT
		"2001:4:112::/48", // AS112-v6
		"2001:20::/27",    // ORCHIDv2 and drone remote ID
	)
)

// IsGlobal reports whether addr is globally routable.
func IsGlobal(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap().WithZone("")
	if addr.Is4() {
		return contains(global4, addr) || !contains(nonGlobal4, addr)
	}
	return contains(global6, addr) || !contains(nonGlobal6, addr)
}

func contains(list []netip.Prefix, addr netip.Addr) bool {
	for _, p := range list {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func prefixes(s ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(s))
	for _, p := range s {
		out = append(out, netip.MustParsePrefix(p))
	}
	return out
}
