package store

import (
	"strings"
	"testing"
)

func TestSanitizeSearchTerm(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Ericsson", "Ericsson"},
		{"diacritics kept", "Åkeri & Söner", "Åkeri & Söner"},
		{"percent escaped", "100% Bolag", `100\% Bolag`},
		{"underscore escaped", "A_B", `A\_B`},
		{"backslash escaped first", `a\%b`, `a\\\%b`},
		{"control chars stripped", "Test\x00\x1F\x7FAB", "TestAB"},
		{"newline stripped", "Test\nAB", "TestAB"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSearchTerm(tc.in); got != tc.want {
				t.Errorf("SanitizeSearchTerm(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeSearchTermTruncates(t *testing.T) {
	long := strings.Repeat("ö", 150)
	got := SanitizeSearchTerm(long)
	if n := len([]rune(got)); n != 100 {
		t.Errorf("truncated length = %d runes, want 100", n)
	}
}

func TestSanitizeSearchTermTruncatesBeforeEscaping(t *testing.T) {
	// 100 percent signs survive truncation and each gains an escape, so
	// the escaped form may exceed 100 characters.
	long := strings.Repeat("%", 150)
	got := SanitizeSearchTerm(long)
	if got != strings.Repeat(`\%`, 100) {
		t.Errorf("unexpected escaped form, got %d chars", len(got))
	}
}
