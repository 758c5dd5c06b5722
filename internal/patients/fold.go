package patients

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var honorifics = map[string]struct{}{
	"dr": {}, "doctor": {}, "md": {}, "mr": {}, "mrs": {}, "ms": {},
}

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

// NameKey reduces a person name to an order-independent comparison key so
// "ROE, JANE", "Jane Roe" and "Dr. Jane Roé" all match. It is used to spot
// the requesting doctor whichever way the census prints the name.
func NameKey(name string) string {
	tokens := nameTokens(name)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// DedupeKey keeps token order so swapped first and last names stay distinct.
// Case, accents, spacing and honorifics are ignored; the comma of a
// "LAST, FIRST" name is kept.
func DedupeKey(name string) string {
	last, rest, comma := strings.Cut(name, ",")
	if !comma {
		return strings.Join(nameTokens(name), " ")
	}
	lastKey := strings.Join(nameTokens(last), " ")
	restKey := strings.Join(nameTokens(rest), " ")
	if lastKey == "" || restKey == "" {
		return lastKey + restKey
	}
	return lastKey + "," + restKey
}

func nameTokens(name string) []string {
	tokens := strings.FieldsFunc(Fold(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, skip := honorifics[tok]; skip {
			continue
		}
		kept = append(kept, tok)
	}
	return kept
}
