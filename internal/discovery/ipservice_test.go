package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	logrtesting "github.com/go-logr/logr/testing"
	mdns "github.com/miekg/dns"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/dns"
)

func echoServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestIPServiceQuery(t *testing.T) {
	var gotAgent string
	srv := echoServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		fmt.Fprintln(w, "  203.0.113.7 ")
	})

	svc := &IPService{URL: srv.URL, Timeout: time.Second, UserAgent: "route53-ip-update/test", Log: logrtesting.NewTestLogger(t)}
	addr, err := svc.Query(context.Background(), IPv4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := netip.MustParseAddr("203.0.113.7"); addr != want {
		t.Errorf("expected %s, got %s", want, addr)
	}
	if gotAgent != "route53-ip-update/test" {
		t.Errorf("unexpected user agent %q", gotAgent)
	}
}

func TestIPServiceQuery_ResolvesHostnameForFamily(t *testing.T) {
	srv := echoServer(t, func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		fmt.Fprint(w, host)
	})
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	ns := &testNameServer{records: map[string][]mdns.RR{
		"echo.example.": {a("echo.example.", "127.0.0.1")},
	}}
	svc := &IPService{
		URL:      "http://echo.example:" + u.Port() + "/",
		Timeout:  2 * time.Second,
		Resolver: startNameServer(t, ns),
		Log:      logrtesting.NewTestLogger(t),
	}

	addr, err := svc.Query(context.Background(), IPv4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := netip.MustParseAddr("127.0.0.1"); addr != want {
		t.Errorf("expected %s, got %s", want, addr)
	}
	if want := []uint16{mdns.TypeA}; !slices.Equal(ns.seen(), want) {
		t.Errorf("expected a single A query, got %v", ns.seen())
	}
}

func TestIPServiceQuery_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "busy", http.StatusServiceUnavailable)
			},
			check: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "503") {
					t.Errorf("expected the status in the error, got %v", err)
				}
			},
		},
		{
			name: "not an address",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "<html>hello</html>")
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, dns.ErrInvalidAddress) {
					t.Errorf("expected ErrInvalidAddress, got %v", err)
				}
			},
		},
		{
			name: "too slow",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			check: func(t *testing.T, err error) {
				var netErr net.Error
				if !errors.As(err, &netErr) || !netErr.Timeout() {
					t.Errorf("expected a timeout, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := echoServer(t, tt.handler)
			svc := &IPService{URL: srv.URL, Timeout: 200 * time.Millisecond, Log: logrtesting.NewTestLogger(t)}

			_, err := svc.Query(context.Background(), IPv4)
			if err == nil {
				t.Fatal("expected an error")
			}
			tt.check(t, err)
		})
	}
}
