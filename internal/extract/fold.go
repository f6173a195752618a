package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and drops everything that is not an
// ASCII letter, so "José" becomes "jose" and "O'Neil" becomes "oneil".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitName returns the folded first and last token of a full name.
func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	first = Fold(parts[0])
	if len(parts) > 1 {
		last = Fold(parts[len(parts)-1])
	}
	return first, last
}

// LocalParts returns the address local parts tried for a name, in order:
// first, first.last, f.last, firstlast. Names without a last name yield only first.
func LocalParts(name string) []string {
	first, last := splitName(name)
	if first == "" {
		return nil
	}
	if last == "" {
		return []string{first}
	}
	return []string{first, first + "." + last, first[:1] + "." + last, first + last}
}

// MatchesName reports whether the local part of email spells name in one of the
// common corporate formats.
func MatchesName(email, name string) bool {
	first, last := splitName(name)
	if first == "" {
		return false
	}
	local := LocalPart(email)
	if local == first {
		return true
	}
	if last == "" {
		return false
	}
	switch local {
	case last,
		first + "." + last,
		first[:1] + "." + last,
		first[:1] + last,
		first + last,
		first + "_" + last,
		first + "-" + last:
		return true
	}
	return false
}
