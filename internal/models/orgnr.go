package models

import (
	"fmt"
	"strings"
)

// NormalizeOrgnr strips separators and whitespace from an organization
// number. Normalization is idempotent; it does not validate.
func NormalizeOrgnr(orgnr string) string {
	var b strings.Builder
	b.Grow(len(orgnr))
	for _, r := range orgnr {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateOrgnr checks that a normalized organization number is the
// 10-digit company form or the 12-digit personal-number form.
func ValidateOrgnr(orgnr string) error {
	n := NormalizeOrgnr(orgnr)
	if len(n) != 10 && len(n) != 12 {
		return fmt.Errorf("invalid orgnr %q: want 10 or 12 digits, got %d", orgnr, len(n))
	}
	return nil
}

// FormatOrgnr renders a 10-digit number as NNNNNN-NNNN for upstream APIs
// that require the hyphenated form. The 12-digit personal-number form passes
// through verbatim.
func FormatOrgnr(orgnr string) string {
	n := NormalizeOrgnr(orgnr)
	if len(n) == 10 {
		return n[:6] + "-" + n[6:]
	}
	return n
}
