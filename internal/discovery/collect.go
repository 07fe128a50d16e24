package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

var (
	// ErrNoSources is returned when neither interfaces nor the IP service
	// are queried.
	ErrNoSources = errors.New("not querying any interfaces or IP services")
	// ErrDiscovery wraps the failures of discovery sources.
	ErrDiscovery = errors.New("address discovery failed")
)

// Collector gathers the desired addresses from the enabled sources.
type Collector struct {
	Filter Filter

	QueryInterfaces bool
	// AllowsInterface reports whether an interface may be queried. Nil
	// allows all.
	AllowsInterface func(name string) bool

	// Service is queried once per enabled family. Nil disables it.
	Service *IPService

	// AllowPartial keeps the addresses of the sources that succeeded when
	// others fail.
	AllowPartial bool

	Log logr.Logger
}

type source struct {
	name  string
	fetch func(ctx context.Context) ([]netip.Addr, error)
}

func (c *Collector) sources() []source {
	var out []source
	if c.QueryInterfaces {
		out = append(out, source{name: "interfaces", fetch: func(context.Context) ([]netip.Addr, error) {
			return InterfaceAddresses(c.Log, c.AllowsInterface)
		}})
	}
	if c.Service != nil {
		for _, family := range c.Filter.Families() {
			out = append(out, source{name: "ip service " + family.String(), fetch: func(ctx context.Context) ([]netip.Addr, error) {
				addr, err := c.Service.Query(ctx, family)
				if err != nil {
					return nil, err
				}
				return []netip.Addr{addr}, nil
			}})
		}
	}
	return out
}

// Collect queries every source concurrently and returns the addresses the
// filter allows. Any failed source fails the collection unless AllowPartial
// is set and at least one source succeeded.
func (c *Collector) Collect(ctx context.Context) (dns.Addresses, error) {
	sources := c.sources()
	if len(sources) == 0 {
		return dns.Addresses{}, ErrNoSources
	}

	var (
		mu        sync.Mutex
		errs      []error
		succeeded int
	)
	addrs := dns.NewAddresses()

	var g errgroup.Group
	for _, src := range sources {
		g.Go(func() error {
			found, err := src.fetch(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.Log.Error(err, "discovery source failed", "source", src.name)
				errs = append(errs, fmt.Errorf("%s: %w", src.name, err))
				return nil
			}
			succeeded++
			for _, addr := range found {
				if !c.Filter.Allows(addr) {
					c.Log.V(1).Info("skipping address", "source", src.name, "address", addr.String())
					continue
				}
				addrs.Add(addr)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 && (!c.AllowPartial || succeeded == 0) {
		return dns.Addresses{}, fmt.Errorf("%w: %w", ErrDiscovery, utilerrors.NewAggregate(errs))
	}

	c.Log.Info("discovered addresses", "ipv4", dns.Join(addrs.IPv4), "ipv6", dns.Join(addrs.IPv6))
	return addrs, nil
}
