// Package macaddr normalizes printer MAC addresses between the dotted form
// printers use on the wire and the canonical colon form used everywhere
// else in the broker.
package macaddr

import (
	"errors"
	"strings"
)

// ErrInvalid is returned when a string cannot be normalized to a MAC address.
var ErrInvalid = errors.New("macaddr: invalid MAC address")

const hexDigits = "0123456789ABCDEFabcdef"

// Normalize converts mac to canonical uppercase colon form
// (AA:BB:CC:DD:EE:FF). It accepts dot separators, colon separators, or no
// separators at all, as long as exactly 12 hex digits remain. Normalize is
// idempotent: Normalize(Normalize(x)) == Normalize(x) for any valid x.
func Normalize(mac string) (string, error) {
	stripped := strings.Map(func(r rune) rune {
		if r == ':' || r == '.' || r == '-' {
			return -1
		}
		return r
	}, mac)

	if len(stripped) != 12 {
		return "", ErrInvalid
	}
	for _, r := range stripped {
		if !strings.ContainsRune(hexDigits, r) {
			return "", ErrInvalid
		}
	}

	stripped = strings.ToUpper(stripped)

	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(stripped[i : i+2])
	}
	return b.String(), nil
}

// MustNormalize is Normalize but panics on error. Intended for constants and
// tests, never for request handling.
func MustNormalize(mac string) string {
	n, err := Normalize(mac)
	if err != nil {
		panic(err)
	}
	return n
}

// ToDotForm converts a canonical colon-form MAC to the dot form printers use
// on the wire (AA.BB.CC.DD.EE.FF). The input is not validated beyond
// replacing separators; callers that need validation should Normalize first.
func ToDotForm(mac string) string {
	return strings.ReplaceAll(mac, ":", ".")
}
