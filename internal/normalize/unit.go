// -----------------------------------------------------------------------
// Unit Normalizer - canonicalize measurement unit tokens from noisy OCR text
// -----------------------------------------------------------------------

package normalize

import (
	"regexp"
	"strings"
)

// superscripts maps Unicode super/subscript digits to their ASCII form.
var superscripts = strings.NewReplacer(
	"⁰", "0", "¹", "1", "²", "2", "³", "3", "⁴", "4",
	"⁵", "5", "⁶", "6", "⁷", "7", "⁸", "8", "⁹", "9",
	"₀", "0", "₁", "1", "₂", "2", "₃", "3", "₄", "4",
	"₅", "5", "₆", "6", "₇", "7", "₈", "8", "₉", "9",
)

// unitCorrections is the fixed correction table applied after the generic
// OCR cleanups. Ties favor the shortest valid canonical form.
var unitCorrections = map[string]string{
	"UNI":     "UN",
	"UND":     "UN",
	"UNIDADE": "UN",
	"METRO":   "M",
	"METROS":  "M",
	"KGS":     "KG",
	"LT":      "L",
	"TON":     "T",
	"M23":     "M2",
	"M22":     "M2",
	"M32":     "M3",
	"M33":     "M3",
	"MOS":     "MES",
}

// validUnits is the closed list of known unit tokens. Tokens of length <= 3
// outside the list are still accepted (permissive for short codes).
var validUnits = map[string]bool{
	"M": true, "M2": true, "M3": true, "ML": true, "KM": true, "CM": true,
	"UN": true, "KG": true, "G": true, "T": true, "L": true, "HA": true,
	"MES": true, "DIA": true, "H": true, "VB": true, "PC": true, "CJ": true,
	"PAR": true, "SC": true, "GL": true, "KWP": true,
}

var (
	squareVariant  = regexp.MustCompile(`M[\^?°]\s?2|M\?|M°`)
	cubicVariant   = regexp.MustCompile(`M[\^?°]\s?3`)
	nonAlnum       = regexp.MustCompile(`[^A-Z0-9]`)
	multiWhitespace = regexp.MustCompile(`\s+`)
)

// Unit canonicalizes a raw unit token: strips diacritics, uppercases,
// translates super/subscript digits, repairs common OCR artifacts and applies
// the fixed correction table. The result contains only [A-Z0-9].
//
// Unit is idempotent: Unit(Unit(x)) == Unit(x).
func Unit(raw string) string {
	tok := StripDiacritics(raw)
	tok = strings.ToUpper(tok)
	tok = multiWhitespace.ReplaceAllString(strings.TrimSpace(tok), " ")
	tok = superscripts.Replace(tok)

	// Square/cubic meter spellings that survive diacritic stripping:
	// "M^2", "M?" and "M°" are all OCR renderings of M².
	tok = squareVariant.ReplaceAllString(tok, "M2")
	tok = cubicVariant.ReplaceAllString(tok, "M3")

	// Repeated-letter OCR artifacts. "UN" is a valid token and is exempt
	// from the NN collapse so corrections never cascade through it.
	if tok != "UN" {
		tok = strings.ReplaceAll(tok, "NN", "N")
	}
	tok = strings.ReplaceAll(tok, "MM", "M")
	tok = strings.ReplaceAll(tok, "UU", "U")

	tok = nonAlnum.ReplaceAllString(tok, "")

	if fixed, ok := unitCorrections[tok]; ok {
		tok = fixed
	}
	return tok
}

// ValidUnit reports whether a normalized token is an acceptable unit.
// Tokens longer than 5 characters are rejected outright; short tokens
// (<= 3) are accepted even when unknown, since tender tables use ad-hoc
// abbreviations.
func ValidUnit(token string) bool {
	if token == "" || len(token) > 5 {
		return false
	}
	if validUnits[token] {
		return true
	}
	return len(token) <= 3
}
