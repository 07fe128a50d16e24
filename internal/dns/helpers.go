package dns

import (
	"strings"
)

// FQDN returns hostname with exactly one trailing dot, the form the provider
// uses for record set names.
// e.g. "app.example.com" → "app.example.com."
func FQDN(hostname string) string {
	return strings.TrimSuffix(hostname, ".") + "."
}

// SameName reports whether a provider record name refers to hostname. Both are
// trailing-dot normalized and compared case-insensitively; the provider's
// escaped wildcard label (\052) matches a literal "*".
func SameName(recordName, hostname string) bool {
	recordName = strings.ReplaceAll(recordName, `\052`, "*")
	return strings.EqualFold(FQDN(recordName), FQDN(hostname))
}
