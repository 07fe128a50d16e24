package discovery

import (
	"fmt"
	"net/netip"

	"github.com/go-logr/logr"
	sockaddr "github.com/hashicorp/go-sockaddr"
)

// allInterfaces is replaced in tests.
var allInterfaces = sockaddr.GetAllInterfaces

// InterfaceAddresses returns the IP addresses assigned to local interfaces
// that allowInterface accepts. Family and routability filtering is left to
// the caller.
func InterfaceAddresses(log logr.Logger, allowInterface func(name string) bool) ([]netip.Addr, error) {
	ifAddrs, err := allInterfaces()
	if err != nil {
		return nil, fmt.Errorf("listing network interfaces: %w", err)
	}

	checked := map[string]bool{}
	var out []netip.Addr
	for _, ifAddr := range ifAddrs {
		name := ifAddr.Interface.Name
		if allowInterface != nil && !allowInterface(name) {
			if !checked[name] {
				log.V(1).Info("ignoring interface", "interface", name)
				checked[name] = true
			}
			continue
		}

		ipAddr, ok := ifAddr.SockAddr.(sockaddr.IPAddr)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(*ipAddr.NetIP())
		if !ok {
			continue
		}
		addr = addr.Unmap()
		log.V(1).Info("found interface address", "interface", name, "address", addr.String())
		out = append(out, addr)
	}
	return out, nil
}
