package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/asaskevich/govalidator"
	"go.yaml.in/yaml/v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const (
	// DefaultTTL applies when neither hostname, zone nor global TTL is set.
	DefaultTTL TTL = 300

	DefaultIPService          = "https://ipinfo.kanga.org/"
	DefaultTimeout            = 10 * time.Second
	DefaultAPITimeout         = 30 * time.Second
	DefaultPropagationTimeout = time.Duration(0)
)

// ErrInvalidConfig is returned by Check and by the loaders for configuration
// that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the merged result of the config file and command-line flags.
// Pointer fields are unset when nil; use the accessor methods to read them with
// defaults applied.
type Config struct {
	AddressType           *AddressType `yaml:"address-type,omitempty" toml:"address-type"`
	AllowNonroutable      *bool        `yaml:"allow-nonroutable,omitempty" toml:"allow-nonroutable"`
	QueryInterfaces       *bool        `yaml:"query-interfaces,omitempty" toml:"query-interfaces"`
	QueryIPService        *bool        `yaml:"query-ip-service,omitempty" toml:"query-ip-service"`
	AllowPartialDiscovery *bool        `yaml:"allow-partial-discovery,omitempty" toml:"allow-partial-discovery"`
	IgnoreInterfaces      []string     `yaml:"ignore-interfaces,omitempty" toml:"ignore-interfaces"`
	IPService             *string      `yaml:"ip-service,omitempty" toml:"ip-service"`
	Timeout               *Duration    `yaml:"timeout,omitempty" toml:"timeout"`
	APITimeout            *Duration    `yaml:"api-timeout,omitempty" toml:"api-timeout"`
	PropagationTimeout    *Duration    `yaml:"propagation-timeout,omitempty" toml:"propagation-timeout"`
	TTL                   *TTL         `yaml:"ttl,omitempty" toml:"ttl"`
	Zones                 []ZoneConfig `yaml:"route53-zones,omitempty" toml:"route53-zones"`
}

// ZoneConfig is one managed Route 53 hosted zone.
type ZoneConfig struct {
	ZoneID    string           `yaml:"zone-id" toml:"zone-id"`
	TTL       *TTL             `yaml:"ttl,omitempty" toml:"ttl"`
	Hostnames []HostnameConfig `yaml:"hostnames" toml:"hostnames"`
}

// HostnameConfig is one hostname to manage. In files it is either a bare
// string or a mapping with hostname and ttl keys.
type HostnameConfig struct {
	Hostname string `yaml:"hostname" toml:"hostname"`
	TTL      *TTL   `yaml:"ttl,omitempty" toml:"ttl"`
}

func (h *HostnameConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*h = HostnameConfig{}
		return node.Decode(&h.Hostname)
	}
	type plain HostnameConfig
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	if p.Hostname == "" {
		return fmt.Errorf("line %d: hostname entry is missing 'hostname'", node.Line)
	}
	*h = HostnameConfig(p)
	return nil
}

func (h *HostnameConfig) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		*h = HostnameConfig{Hostname: v}
		return nil
	case map[string]any:
		name, ok := v["hostname"].(string)
		if !ok || name == "" {
			return fmt.Errorf("hostname entry is missing 'hostname'")
		}
		*h = HostnameConfig{Hostname: name}
		if raw, ok := v["ttl"]; ok {
			var ttl TTL
			if err := ttl.UnmarshalTOML(raw); err != nil {
				return err
			}
			h.TTL = &ttl
		}
		return nil
	default:
		return fmt.Errorf("hostname entry must be a string or table, got %T", v)
	}
}

// Family returns the configured address type, defaulting to both.
func (c *Config) Family() AddressType {
	if c.AddressType == nil {
		return AddressTypeBoth
	}
	return *c.AddressType
}

func (c *Config) NonroutableAllowed() bool      { return boolOr(c.AllowNonroutable, false) }
func (c *Config) InterfacesEnabled() bool       { return boolOr(c.QueryInterfaces, false) }
func (c *Config) IPServiceEnabled() bool        { return boolOr(c.QueryIPService, true) }
func (c *Config) PartialDiscoveryAllowed() bool { return boolOr(c.AllowPartialDiscovery, false) }

// IPServiceURL returns the "what is my IP" endpoint.
func (c *Config) IPServiceURL() string {
	if c.IPService == nil {
		return DefaultIPService
	}
	return *c.IPService
}

// ServiceTimeout bounds one IP service request.
func (c *Config) ServiceTimeout() time.Duration { return durationOr(c.Timeout, DefaultTimeout) }

// CallTimeout bounds one zone API call.
func (c *Config) CallTimeout() time.Duration { return durationOr(c.APITimeout, DefaultAPITimeout) }

// PropagationDeadline bounds the wait for a change batch to propagate. Zero
// means wait until the provider reports a terminal status.
func (c *Config) PropagationDeadline() time.Duration {
	return durationOr(c.PropagationTimeout, DefaultPropagationTimeout)
}

// AllowsInterface reports whether the named interface should be queried.
func (c *Config) AllowsInterface(name string) bool {
	for _, ignored := range c.IgnoreInterfaces {
		if ignored == name {
			return false
		}
	}
	return true
}

// AddHostnames adds hostnames to the zone with the given id, creating the zone
// when it is not configured yet. Hostnames already present are skipped.
func (c *Config) AddHostnames(zoneID string, hostnames ...string) {
	idx := -1
	for i := range c.Zones {
		if c.Zones[i].ZoneID == zoneID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.Zones = append(c.Zones, ZoneConfig{ZoneID: zoneID})
		idx = len(c.Zones) - 1
	}

	zone := &c.Zones[idx]
	for _, hostname := range hostnames {
		if !zone.hasHostname(hostname) {
			zone.Hostnames = append(zone.Hostnames, HostnameConfig{Hostname: hostname})
		}
	}
}

func (z *ZoneConfig) hasHostname(hostname string) bool {
	for _, h := range z.Hostnames {
		if h.Hostname == hostname {
			return true
		}
	}
	return false
}

// HostnameList returns the zone's hostnames in configured order.
func (z ZoneConfig) HostnameList() []string {
	out := make([]string, 0, len(z.Hostnames))
	for _, h := range z.Hostnames {
		out = append(out, h.Hostname)
	}
	return out
}

// EffectiveTTL resolves the TTL for a hostname: hostname override, then the
// zone default, then the global default, then DefaultTTL.
func EffectiveTTL(h HostnameConfig, z ZoneConfig, global *TTL) TTL {
	switch {
	case h.TTL != nil:
		return *h.TTL
	case z.TTL != nil:
		return *z.TTL
	case global != nil:
		return *global
	default:
		return DefaultTTL
	}
}

// Merge overlays the fields set in overlay onto c. Set scalar fields replace
// the file values, ignored interfaces accumulate.
func (c *Config) Merge(overlay *Config) error {
	if overlay == nil {
		return nil
	}
	if err := mergo.Merge(c, overlay, mergo.WithOverride, mergo.WithAppendSlice, mergo.WithoutDereference); err != nil {
		return fmt.Errorf("merging command-line settings: %w", err)
	}
	return nil
}

// Check validates the configuration before any network activity. All problems
// are reported together.
func (c *Config) Check() error {
	var errs []error

	if c.IPServiceEnabled() {
		if svc := c.IPServiceURL(); svc == "" {
			errs = append(errs, errors.New("the IP service cannot be empty if querying the IP service is enabled"))
		} else if !isHTTPURL(svc) {
			errs = append(errs, fmt.Errorf("the IP service %q is not an http(s) URL", svc))
		}
	}
	if !c.InterfacesEnabled() && !c.IPServiceEnabled() {
		errs = append(errs, errors.New("not querying any interfaces or IP services"))
	}
	if c.TTL != nil && !c.TTL.Valid() {
		errs = append(errs, fmt.Errorf("invalid TTL: %d", *c.TTL))
	}

	if len(c.Zones) == 0 {
		errs = append(errs, errors.New("no Route 53 zones have been configured"))
	}
	for _, zone := range c.Zones {
		errs = append(errs, zone.check()...)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, utilerrors.NewAggregate(errs))
}

func (z ZoneConfig) check() []error {
	var errs []error
	if z.ZoneID == "" {
		errs = append(errs, errors.New("a zone is missing its zone-id"))
	}
	if z.TTL != nil && !z.TTL.Valid() {
		errs = append(errs, fmt.Errorf("invalid TTL for zone %s: %d", z.ZoneID, *z.TTL))
	}
	if len(z.Hostnames) == 0 {
		errs = append(errs, fmt.Errorf("no hostnames have been configured for zone %s", z.ZoneID))
	}
	for _, h := range z.Hostnames {
		if !isHostname(h.Hostname) {
			errs = append(errs, fmt.Errorf("invalid hostname %q in zone %s", h.Hostname, z.ZoneID))
		}
		if h.TTL != nil && !h.TTL.Valid() {
			errs = append(errs, fmt.Errorf("invalid TTL for hostname %s: %d", h.Hostname, *h.TTL))
		}
	}
	return errs
}

func isHostname(s string) bool {
	s = strings.TrimPrefix(s, "*.")
	return s != "" && govalidator.IsDNSName(strings.TrimSuffix(s, "."))
}

func isHTTPURL(s string) bool {
	if !govalidator.IsRequestURL(s) {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func durationOr(p *Duration, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return time.Duration(*p)
}

// ParseTTL parses a positive number of seconds.
func ParseTTL(s string) (TTL, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid TTL: %s", s)
	}
	return TTL(n), nil
}
