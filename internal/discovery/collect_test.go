package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	logrtesting "github.com/go-logr/logr/testing"
	sockaddr "github.com/hashicorp/go-sockaddr"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

func serviceAnswering(t *testing.T, body string, status int) *IPService {
	t.Helper()
	srv := echoServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
	return &IPService{URL: srv.URL, Timeout: time.Second, Log: logrtesting.NewTestLogger(t)}
}

func TestCollect_NoSources(t *testing.T) {
	c := &Collector{Filter: Filter{IPv4: true, IPv6: true}, Log: logrtesting.NewTestLogger(t)}

	if _, err := c.Collect(context.Background()); !errors.Is(err, ErrNoSources) {
		t.Errorf("expected ErrNoSources, got %v", err)
	}
}

func TestCollect_InterfacesFiltered(t *testing.T) {
	stubInterfaces(t, sockaddr.IfAddrs{
		ifAddr("lo", sockaddr.MustIPv4Addr("127.0.0.1/8")),
		ifAddr("eth0", sockaddr.MustIPv4Addr("8.8.4.4/24")),
		ifAddr("eth0", sockaddr.MustIPv6Addr("2606:4700::10/64")),
		ifAddr("eth0", sockaddr.MustIPv6Addr("fe80::10/64")),
	}, nil)

	c := &Collector{
		Filter:          Filter{IPv4: true, IPv6: true},
		QueryInterfaces: true,
		Log:             logrtesting.NewTestLogger(t),
	}
	got, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v4 := dns.Join(got.IPv4); v4 != "8.8.4.4" {
		t.Errorf("expected only the global IPv4 address, got %q", v4)
	}
	if v6 := dns.Join(got.IPv6); v6 != "2606:4700::10" {
		t.Errorf("expected only the global IPv6 address, got %q", v6)
	}
}

func TestCollect_ServicePerFamily(t *testing.T) {
	// The test service answers with an IPv4 address on every query, so only
	// the IPv4 family is queried here.
	c := &Collector{
		Filter:  Filter{IPv4: true},
		Service: serviceAnswering(t, "8.8.8.8\n", http.StatusOK),
		Log:     logrtesting.NewTestLogger(t),
	}
	got, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v4 := dns.Join(got.IPv4); v4 != "8.8.8.8" {
		t.Errorf("expected the service address, got %q", v4)
	}
	if got.IPv6.Len() != 0 {
		t.Errorf("expected no IPv6 addresses, got %q", dns.Join(got.IPv6))
	}
}

func TestCollect_SourceFailure(t *testing.T) {
	stubInterfaces(t, sockaddr.IfAddrs{
		ifAddr("eth0", sockaddr.MustIPv4Addr("8.8.4.4/24")),
	}, nil)

	newCollector := func(allowPartial bool) *Collector {
		return &Collector{
			Filter:          Filter{IPv4: true},
			QueryInterfaces: true,
			Service:         serviceAnswering(t, "oops", http.StatusBadGateway),
			AllowPartial:    allowPartial,
			Log:             logrtesting.NewTestLogger(t),
		}
	}

	_, err := newCollector(false).Collect(context.Background())
	if !errors.Is(err, ErrDiscovery) {
		t.Fatalf("expected ErrDiscovery, got %v", err)
	}
	if !strings.Contains(err.Error(), "ip service ipv4") {
		t.Errorf("expected the failed source to be named, got %v", err)
	}

	got, err := newCollector(true).Collect(context.Background())
	if err != nil {
		t.Fatalf("expected partial results to be accepted, got %v", err)
	}
	if v4 := dns.Join(got.IPv4); v4 != "8.8.4.4" {
		t.Errorf("expected the interface address, got %q", v4)
	}
}

func TestCollect_AllSourcesFailWithPartialAllowed(t *testing.T) {
	stubInterfaces(t, nil, errors.New("no interfaces"))

	c := &Collector{
		Filter:          Filter{IPv4: true},
		QueryInterfaces: true,
		Service:         serviceAnswering(t, "nope", http.StatusOK),
		AllowPartial:    true,
		Log:             logrtesting.NewTestLogger(t),
	}
	_, err := c.Collect(context.Background())
	if !errors.Is(err, ErrDiscovery) {
		t.Fatalf("expected ErrDiscovery, got %v", err)
	}
	if !errors.Is(err, dns.ErrInvalidAddress) {
		t.Errorf("expected the service error in the chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "no interfaces") {
		t.Errorf("expected the interface error in the message, got %v", err)
	}
}
