package discovery

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"testing"

	mdns "github.com/miekg/dns"
)

// testNameServer answers A and AAAA queries from a fixed table and records
// the query types it saw.
type testNameServer struct {
	mu      sync.Mutex
	records map[string][]mdns.RR
	queries []uint16
}

func (s *testNameServer) ServeDNS(w mdns.ResponseWriter, r *mdns.Msg) {
	m := new(mdns.Msg)
	m.SetReply(r)

	q := r.Question[0]
	s.mu.Lock()
	s.queries = append(s.queries, q.Qtype)
	rrs, ok := s.records[q.Name]
	s.mu.Unlock()

	if !ok {
		m.Rcode = mdns.RcodeNameError
	}
	for _, rr := range rrs {
		if rr.Header().Rrtype == q.Qtype {
			m.Answer = append(m.Answer, rr)
		}
	}
	_ = w.WriteMsg(m)
}

func (s *testNameServer) seen() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.queries...)
}

func a(name, ip string) mdns.RR {
	return &mdns.A{Hdr: mdns.RR_Header{Name: name, Rrtype: mdns.TypeA, Class: mdns.ClassINET, Ttl: 60}, A: net.ParseIP(ip)}
}

func aaaa(name, ip string) mdns.RR {
	return &mdns.AAAA{Hdr: mdns.RR_Header{Name: name, Rrtype: mdns.TypeAAAA, Class: mdns.ClassINET, Ttl: 60}, AAAA: net.ParseIP(ip)}
}

// startNameServer runs ns on a loopback UDP port and returns a resolver
// pointed at it.
func startNameServer(t *testing.T, ns *testNameServer) *Resolver {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	started := make(chan struct{})
	srv := &mdns.Server{PacketConn: pc, Handler: ns, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	_, port, err := net.SplitHostPort(pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("parsing listen address: %v", err)
	}
	return NewResolver(&mdns.ClientConfig{
		Servers:  []string{"127.0.0.1"},
		Port:     port,
		Ndots:    1,
		Timeout:  2,
		Attempts: 1,
	})
}

func TestResolverLookup_FamilyOnly(t *testing.T) {
	ns := &testNameServer{records: map[string][]mdns.RR{
		"svc.example.": {a("svc.example.", "127.0.0.1"), aaaa("svc.example.", "::1")},
	}}
	r := startNameServer(t, ns)
	ctx := context.Background()

	v4, err := r.Lookup(ctx, "svc.example", IPv4)
	if err != nil {
		t.Fatalf("ipv4 lookup: %v", err)
	}
	if want := []netip.Addr{netip.MustParseAddr("127.0.0.1")}; !slices.Equal(v4, want) {
		t.Errorf("expected %v, got %v", want, v4)
	}

	v6, err := r.Lookup(ctx, "svc.example", IPv6)
	if err != nil {
		t.Fatalf("ipv6 lookup: %v", err)
	}
	if want := []netip.Addr{netip.MustParseAddr("::1")}; !slices.Equal(v6, want) {
		t.Errorf("expected %v, got %v", want, v6)
	}

	if want := []uint16{mdns.TypeA, mdns.TypeAAAA}; !slices.Equal(ns.seen(), want) {
		t.Errorf("expected one query per family, got %v", ns.seen())
	}
}

func TestResolverLookup_NoAnswers(t *testing.T) {
	ns := &testNameServer{records: map[string][]mdns.RR{
		"v4only.example.": {a("v4only.example.", "127.0.0.1")},
	}}
	r := startNameServer(t, ns)

	_, err := r.Lookup(context.Background(), "v4only.example", IPv6)
	if err == nil || !strings.Contains(err.Error(), "AAAA") {
		t.Errorf("expected an AAAA lookup error, got %v", err)
	}

	_, err = r.Lookup(context.Background(), "missing.example", IPv4)
	if err == nil || !strings.Contains(err.Error(), "NXDOMAIN") {
		t.Errorf("expected NXDOMAIN, got %v", err)
	}
}

func TestResolverLookup_Literal(t *testing.T) {
	r := NewResolver(&mdns.ClientConfig{Port: "53"})

	got, err := r.Lookup(context.Background(), "192.0.2.1", IPv4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []netip.Addr{netip.MustParseAddr("192.0.2.1")}; !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := r.Lookup(context.Background(), "192.0.2.1", IPv6); err == nil {
		t.Error("expected an error for an IPv4 literal looked up as IPv6")
	}
}
