package store

import "strings"

const maxSearchTermLen = 100

// SanitizeSearchTerm prepares raw caller input for use inside a LIKE
// pattern: truncate to 100 characters, drop control characters, then
// escape backslash, percent and underscore so they match literally.
func SanitizeSearchTerm(term string) string {
	runes := []rune(term)
	if len(runes) > maxSearchTermLen {
		runes = runes[:maxSearchTermLen]
	}

	var b strings.Builder
	b.Grow(len(runes))
	for _, r := range runes {
		if r < 0x20 || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}

	s := b.String()
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
