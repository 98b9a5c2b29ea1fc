package garble

import (
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// restoreCase re-applies a source word's capitalisation to a garbled result.
// An all-caps source upper-cases everything; a capitalised source upper-cases
// only the first rune.
func restoreCase(s string, allCaps, capitalized bool) string {
	if s == "" {
		return s
	}
	// Casers carry state and must not be shared between goroutines.
	upper := cases.Upper(language.Und)
	switch {
	case allCaps:
		return upper.String(s)
	case capitalized:
		_, n := utf8.DecodeRuneInString(s)
		return upper.String(s[:n]) + s[n:]
	default:
		return s
	}
}
