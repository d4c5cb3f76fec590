package vocab

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText lowercases a source value and strips diacritics, so that
// free-text codes from the export ("Médico de Familia") compare equal to
// their vocabulary spellings regardless of accenting.
func NormalizeText(text string) string {
	lowered := strings.ToLower(text)
	plain, _, err := transform.String(stripAccents, lowered)
	if err != nil {
		return lowered
	}
	return plain
}
