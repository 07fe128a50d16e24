package dns

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress is returned when a record value or discovered value is
	// not an IP literal of the expected family.
	ErrInvalidAddress = errors.New("invalid IP address")

	// ErrMissingReplyField is returned when a provider reply omits a field the
	// contract requires. It is never retried.
	ErrMissingReplyField = errors.New("reply is missing expected field")

	// ErrUnexpectedStatus is returned when the provider reports a change status
	// outside the known set.
	ErrUnexpectedStatus = errors.New("unexpected change status reported")

	// ErrTransport wraps failures of the zone API call itself.
	ErrTransport = errors.New("zone API call failed")
)

// MissingReplyField returns an error wrapping ErrMissingReplyField for field.
func MissingReplyField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingReplyField, field)
}

// UnexpectedStatus returns an error wrapping ErrUnexpectedStatus with the raw
// provider value.
func UnexpectedStatus(status ChangeStatus) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedStatus, string(status))
}

// InvalidAddress returns an error wrapping ErrInvalidAddress for value.
func InvalidAddress(value string) error {
	return fmt.Errorf("%w: %q", ErrInvalidAddress, value)
}
