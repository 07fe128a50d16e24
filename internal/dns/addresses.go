package dns

import (
	"net/netip"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Addresses is the desired address set for a run, split by family.
type Addresses struct {
	IPv4 sets.Set[netip.Addr]
	IPv6 sets.Set[netip.Addr]
}

// NewAddresses returns empty address sets.
func NewAddresses() Addresses {
	return Addresses{IPv4: sets.New[netip.Addr](), IPv6: sets.New[netip.Addr]()}
}

// Add files addr under its family. IPv4-mapped IPv6 addresses count as IPv4.
func (a Addresses) Add(addr netip.Addr) {
	addr = addr.Unmap()
	if addr.Is4() {
		a.IPv4.Insert(addr)
	} else if addr.Is6() {
		a.IPv6.Insert(addr.WithZone(""))
	}
}

// Empty reports whether neither family has an address.
func (a Addresses) Empty() bool {
	return a.IPv4.Len() == 0 && a.IPv6.Len() == 0
}

// Sorted returns the members of s in ascending order.
func Sorted(s sets.Set[netip.Addr]) []netip.Addr {
	out := s.UnsortedList()
	slices.SortFunc(out, func(a, b netip.Addr) int { return a.Compare(b) })
	return out
}

// Join renders the members of s sorted and comma separated.
func Join(s sets.Set[netip.Addr]) string {
	addrs := Sorted(s)
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}
