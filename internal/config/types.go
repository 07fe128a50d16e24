package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"go.yaml.in/yaml/v3"
)

var (
	_ pflag.Value = (*TTL)(nil)
	_ pflag.Value = (*AddressType)(nil)
	_ pflag.Value = (*Duration)(nil)
)

// TTL is a record TTL in seconds. Valid TTLs are positive.
type TTL int64

func (t TTL) Valid() bool { return t > 0 }

func (t *TTL) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("line %d: invalid TTL %q", node.Line, node.Value)
	}
	if n <= 0 {
		return fmt.Errorf("line %d: invalid TTL: %d", node.Line, n)
	}
	*t = TTL(n)
	return nil
}

func (t *TTL) UnmarshalTOML(v any) error {
	n, ok := v.(int64)
	if !ok {
		return fmt.Errorf("invalid TTL %v", v)
	}
	if n <= 0 {
		return fmt.Errorf("invalid TTL: %d", n)
	}
	*t = TTL(n)
	return nil
}

// String, Set and Type make *TTL usable as a pflag.Value.
func (t *TTL) String() string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(int64(*t), 10)
}

func (t *TTL) Set(s string) error {
	v, err := ParseTTL(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t *TTL) Type() string { return "seconds" }

// AddressType selects which address families are managed.
type AddressType string

const (
	AddressTypeBoth AddressType = "both"
	AddressTypeIPv4 AddressType = "ipv4"
	AddressTypeIPv6 AddressType = "ipv6"
)

func (a AddressType) IPv4() bool { return a == AddressTypeBoth || a == AddressTypeIPv4 }
func (a AddressType) IPv6() bool { return a == AddressTypeBoth || a == AddressTypeIPv6 }

// ParseAddressType accepts both, ipv4 and ipv6.
func ParseAddressType(s string) (AddressType, error) {
	switch a := AddressType(s); a {
	case AddressTypeBoth, AddressTypeIPv4, AddressTypeIPv6:
		return a, nil
	default:
		return "", fmt.Errorf("invalid address type %q, expected one of both, ipv4, ipv6", s)
	}
}

func (a *AddressType) UnmarshalText(text []byte) error {
	v, err := ParseAddressType(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a *AddressType) UnmarshalYAML(node *yaml.Node) error {
	if err := a.UnmarshalText([]byte(node.Value)); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func (a *AddressType) String() string {
	if a == nil {
		return ""
	}
	return string(*a)
}

func (a *AddressType) Set(s string) error { return a.UnmarshalText([]byte(s)) }
func (a *AddressType) Type() string       { return "type" }

// Duration is a time.Duration written as a Go duration string ("10s", "1m30s").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", text)
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if err := d.UnmarshalText([]byte(node.Value)); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func (d *Duration) String() string {
	if d == nil {
		return ""
	}
	return time.Duration(*d).String()
}

func (d *Duration) Set(s string) error { return d.UnmarshalText([]byte(s)) }
func (d *Duration) Type() string       { return "duration" }
