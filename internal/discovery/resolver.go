package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	mdns "github.com/miekg/dns"
)

// DefaultResolvConf is the system resolver configuration.
const DefaultResolvConf = "/etc/resolv.conf"

// Resolver looks up one address family at a time using a resolver
// configuration read once at startup. It is safe for concurrent use.
type Resolver struct {
	config *mdns.ClientConfig
	udp    *mdns.Client
	tcp    *mdns.Client
}

// LoadResolver reads the resolver configuration at path.
func LoadResolver(path string) (*Resolver, error) {
	cfg, err := mdns.ClientConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resolver configuration %s: %w", path, err)
	}
	return NewResolver(cfg), nil
}

// NewResolver returns a resolver using cfg's servers, search list and
// timeout.
func NewResolver(cfg *mdns.ClientConfig) *Resolver {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		config: cfg,
		udp:    &mdns.Client{Net: "udp", Timeout: timeout},
		tcp:    &mdns.Client{Net: "tcp", Timeout: timeout},
	}
}

// Lookup resolves host to addresses of the given family only. IP literals
// are returned as is when they belong to family.
func (r *Resolver) Lookup(ctx context.Context, host string, family Family) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if (family == IPv4) != addr.Is4() {
			return nil, fmt.Errorf("%s is not an %s address", host, family)
		}
		return []netip.Addr{addr}, nil
	}

	qtype := mdns.TypeA
	if family == IPv6 {
		qtype = mdns.TypeAAAA
	}

	var lastErr error
	for _, name := range r.config.NameList(host) {
		addrs, err := r.query(ctx, name, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		if len(addrs) > 0 {
			return addrs, nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no addresses found")
	}
	return nil, fmt.Errorf("resolving %s (%s): %w", host, mdns.TypeToString[qtype], lastErr)
}

// query asks each configured server in turn until one answers.
func (r *Resolver) query(ctx context.Context, name string, qtype uint16) ([]netip.Addr, error) {
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(name), qtype)

	var lastErr error
	for _, server := range r.config.Servers {
		serverAddr := net.JoinHostPort(server, r.config.Port)
		in, _, err := r.udp.ExchangeContext(ctx, msg, serverAddr)
		if err == nil && in.Truncated {
			in, _, err = r.tcp.ExchangeContext(ctx, msg, serverAddr)
		}
		if err != nil {
			lastErr = err
			continue
		}

		switch in.Rcode {
		case mdns.RcodeSuccess:
			return answers(in, qtype), nil
		case mdns.RcodeNameError:
			return nil, fmt.Errorf("%s: %s", name, mdns.RcodeToString[in.Rcode])
		default:
			lastErr = fmt.Errorf("%s: server %s answered %s", name, server, mdns.RcodeToString[in.Rcode])
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no name servers configured")
	}
	return nil, lastErr
}

func answers(in *mdns.Msg, qtype uint16) []netip.Addr {
	var out []netip.Addr
	for _, rr := range in.Answer {
		var ip net.IP
		switch rr := rr.(type) {
		case *mdns.A:
			if qtype == mdns.TypeA {
				ip = rr.A
			}
		case *mdns.AAAA:
			if qtype == mdns.TypeAAAA {
				ip = rr.AAAA
			}
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			if qtype == mdns.TypeA {
				addr = addr.Unmap()
			}
			out = append(out, addr)
		}
	}
	return out
}
