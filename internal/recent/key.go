package recent

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ItemKey derives the stable dedup key for a library item from its title and
// year: the normalized title plus the year, e.g. "breaking bad_2008".
func ItemKey(title string, year int) string {
	return fmt.Sprintf("%s_%d", normalizeTitle(title), year)
}

// normalizeTitle lowercases, strips accents and punctuation, and collapses
// whitespace so cosmetic differences between the monitor's and the backend's
// titles don't defeat matching.
func normalizeTitle(title string) string {
	s := strings.ToLower(title)
	s = removeAccents(s)
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}
