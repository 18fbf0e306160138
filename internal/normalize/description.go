package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripDiacritics removes combining accents: "pavimentação" -> "pavimentacao".
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}

var (
	separators = strings.NewReplacer(";", ",", ":", ",")
	nonWord    = regexp.MustCompile(`[^A-Z0-9_, ]`)
	// numericRun matches runs where OCR commonly confuses letters with
	// digits; a run qualifies only when it contains at least one real digit.
	numericRun = regexp.MustCompile(`[0-9IlO]{2,}`)
	hasDigit   = regexp.MustCompile(`[0-9]`)
)

var digitConfusions = strings.NewReplacer("I", "1", "l", "1", "O", "0")

// Description canonicalizes a service or requirement description: strips
// diacritics, uppercases, folds separators into commas, drops punctuation and
// repairs digit/letter confusions inside numeric runs.
func Description(raw string) string {
	s := StripDiacritics(raw)
	s = separators.Replace(s)
	// Confusion repair runs before uppercasing so a lowercase OCR "l" inside
	// a numeric run is still distinguishable from a real letter L.
	s = numericRun.ReplaceAllStringFunc(s, func(run string) string {
		if !hasDigit.MatchString(run) {
			return run
		}
		return digitConfusions.Replace(run)
	})
	s = strings.ToUpper(s)
	s = nonWord.ReplaceAllString(s, " ")
	return CollapseWhitespace(s)
}

// CollapseWhitespace trims and folds runs of whitespace to single spaces.
func CollapseWhitespace(s string) string {
	return multiWhitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}
