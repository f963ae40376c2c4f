package utils

import (
	"net/mail"
	"strings"
)

// NormalizeEmail lower-cases and trims an address and rejects anything that is
// not a bare addr-spec.
func NormalizeEmail(raw string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(raw))
	if e == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", false
	}
	return e, true
}
