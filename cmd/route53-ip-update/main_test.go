package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yuriy-kovalchuk/route53-ip-update/internal/config"
)

// parse runs the command line through flag parsing and config building.
func parse(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	opts := &options{}
	cmd := newRootCommand(opts)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	return buildConfig(cmd, opts, cmd.Flags().Args())
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
address-type: ipv4
ttl: 600
timeout: 5s
ignore-interfaces: [docker0]
route53-zones:
  - zone-id: Z1
    hostnames: [home.example.com]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parse(t, "-c", path, "-T", "60", "-I", "veth0", "-n", "-r", "Z1", "nas.example.com", "home.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Family() != config.AddressTypeIPv4 {
		t.Errorf("expected address type from file, got %s", cfg.Family())
	}
	if cfg.TTL == nil || *cfg.TTL != 60 {
		t.Errorf("expected TTL 60 from flags, got %v", cfg.TTL)
	}
	if cfg.ServiceTimeout() != 5*time.Second {
		t.Errorf("expected timeout from file, got %s", cfg.ServiceTimeout())
	}
	if !cfg.NonroutableAllowed() {
		t.Error("expected allow-nonroutable from flags")
	}
	if cfg.AllowsInterface("docker0") || cfg.AllowsInterface("veth0") {
		t.Errorf("expected ignored interfaces to accumulate, got %v", cfg.IgnoreInterfaces)
	}
	if len(cfg.Zones) != 1 {
		t.Fatalf("expected 1 zone, got %d", len(cfg.Zones))
	}
	got := cfg.Zones[0].HostnameList()
	if len(got) != 2 || got[0] != "home.example.com" || got[1] != "nas.example.com" {
		t.Errorf("expected hostnames to be merged without duplicates, got %v", got)
	}
}

func TestBuildConfig_UnsetFlagsKeepFileValues(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
ip-service = "https://ip.example.net/"
allow-nonroutable = true

[[route53-zones]]
zone-id = "Z1"
hostnames = ["home.example.com"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parse(t, "--config-file", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IPServiceURL() != "https://ip.example.net/" {
		t.Errorf("expected IP service from file, got %s", cfg.IPServiceURL())
	}
	if !cfg.NonroutableAllowed() {
		t.Error("expected allow-nonroutable from file to survive unset flag")
	}
}

func TestBuildConfig_InterfacesOnlyWithoutFile(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")

	cfg, err := parse(t, "-q", "--query-ip-service=false", "-r", "Z1", "home.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IPServiceEnabled() {
		t.Error("expected the IP service to be disabled from the command line")
	}
	if !cfg.InterfacesEnabled() {
		t.Error("expected interfaces to be queried")
	}

	if _, err := parse(t, "--query-ip-service=false", "-r", "Z1", "home.example.com"); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig with no discovery source, got %v", err)
	}
}

func TestBuildConfig_Errors(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")

	if _, err := parse(t, "home.example.com"); err == nil {
		t.Error("expected an error for hostnames without a zone")
	}
	if _, err := parse(t); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without zones, got %v", err)
	}
	if _, err := parse(t, "-r", "Z1", "-s", "", "home.example.com"); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for an empty IP service, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		log, flush, err := newLogger(format, 1)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", format, err)
		}
		if !log.V(1).Enabled() {
			t.Errorf("%s: expected V(1) to be enabled with one -v", format)
		}
		if log.V(2).Enabled() {
			t.Errorf("%s: expected V(2) to be disabled with one -v", format)
		}
		flush()
	}
	if _, _, err := newLogger("xml", 0); err == nil {
		t.Error("expected an error for an unknown log format")
	}
}
