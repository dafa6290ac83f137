// Package search ranks patients for the schedule search box. Matching is
// accent and case insensitive: names are folded once when entries are built
// and queries are folded on the way in, so "José" and "jose" compare equal.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldChain decomposes to NFD, drops combining marks and recomposes.
var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText trims and lowercases s and strips diacritics.
func NormalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	out, _, err := transform.String(foldChain, s)
	if err != nil {
		return s
	}
	return out
}
