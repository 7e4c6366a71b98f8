package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// ErrInvalidPhone reports a phone number that does not parse for the region.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone parses raw in the default region and returns it in E.164.
// Empty input yields an empty result.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	p, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPhone, raw)
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

// PhoneDigits returns the E.164 number without the leading plus, as used by
// wa.me links.
func PhoneDigits(raw, region string) (string, error) {
	e164, err := NormalizePhone(raw, region)
	if err != nil {
		return "", err
	}
	if e164 == "" {
		return "", ErrInvalidPhone
	}
	return strings.TrimPrefix(e164, "+"), nil
}
