package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

const maxResponseBytes = 1024

// HostResolver resolves a hostname to addresses of one family.
type HostResolver interface {
	Lookup(ctx context.Context, host string, family Family) ([]netip.Addr, error)
}

// IPService queries an "echo my IP" web service that answers with the
// caller's address as plain text.
type IPService struct {
	URL     string
	Timeout time.Duration
	// Resolver resolves the service hostname. Nil uses the system resolver.
	Resolver  HostResolver
	UserAgent string
	Log       logr.Logger
}

// Query asks the service for the public address of the given family. The
// service hostname is resolved for that family only and the connection is
// made over it, so the answer reflects that family's address.
func (s *IPService) Query(ctx context.Context, family Family) (netip.Addr, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("building request for %s: %w", s.URL, err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := &http.Client{Transport: s.transport(family)}
	defer client.CloseIdleConnections()

	s.Log.V(1).Info("querying IP service", "url", s.URL, "family", family.String())
	resp, err := client.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("querying %s over %s: %w", s.URL, family, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("reading response from %s: %w", s.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return netip.Addr{}, fmt.Errorf("querying %s over %s: unexpected status %s", s.URL, family, resp.Status)
	}

	text := strings.TrimSpace(string(body))
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("response from %s: %w", s.URL, dns.InvalidAddress(text))
	}
	addr = addr.Unmap()
	s.Log.V(1).Info("IP service answered", "family", family.String(), "address", addr.String())
	return addr, nil
}

func (s *IPService) transport(family Family) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = s.dialer(family)
	return t
}

// dialer resolves the target host for family and connects to the resolved
// addresses in order.
func (s *IPService) dialer(family Family) func(ctx context.Context, network, address string) (net.Conn, error) {
	netw := "tcp4"
	if family == IPv6 {
		netw = "tcp6"
	}
	d := &net.Dialer{}

	return func(ctx context.Context, _, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		addrs, err := s.lookup(ctx, host, family)
		if err != nil {
			return nil, err
		}

		var errs []error
		for _, addr := range addrs {
			conn, err := d.DialContext(ctx, netw, net.JoinHostPort(addr.String(), port))
			if err == nil {
				return conn, nil
			}
			errs = append(errs, err)
		}
		return nil, errors.Join(errs...)
	}
}

func (s *IPService) lookup(ctx context.Context, host string, family Family) ([]netip.Addr, error) {
	if s.Resolver != nil {
		return s.Resolver.Lookup(ctx, host, family)
	}
	network := "ip4"
	if family == IPv6 {
		network = "ip6"
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, network, host)
	if err != nil {
		return nil, err
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	return addrs, nil
}
