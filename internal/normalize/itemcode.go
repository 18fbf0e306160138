package normalize

import (
	"regexp"
	"strings"
)

// itemCodePattern matches a leading hierarchical item code, optionally
// prefixed "S<n>-" or "AD<n>-": "1.2.3", "S1-2.01", "AD-1 2 3",
// "4 01 2" (space-separated codes are rewritten with dots).
var itemCodePattern = regexp.MustCompile(`^((?:S\d+-|AD\d*-)?)(\d{1,3}(?:\.\d{1,3}){1,3}|\d{1,3}(?: \d{1,2}){1,3})\s+`)

// wholeCodePattern matches a token that is nothing but an item code.
var wholeCodePattern = regexp.MustCompile(`^((?:S\d+-|AD\d*-)?)(\d{1,3}(?:\.\d{1,3}){1,3}|\d{1,3}(?: \d{1,2}){1,3})$`)

// ItemCode reports whether the token is a bare item code and returns its
// dotted form, or "" when it is not one.
func ItemCode(token string) string {
	m := wholeCodePattern.FindStringSubmatch(CollapseWhitespace(token))
	if m == nil {
		return ""
	}
	return m[1] + strings.ReplaceAll(m[2], " ", ".")
}

// ExtractItemCode detects a leading item code in a description, rewrites
// space separators to dots and returns the code plus the remaining
// description. When no code is present it returns "" and the trimmed input.
func ExtractItemCode(description string) (code, rest string) {
	s := CollapseWhitespace(description)
	m := itemCodePattern.FindStringSubmatch(s)
	if m == nil {
		return "", s
	}
	code = m[1] + strings.ReplaceAll(m[2], " ", ".")
	rest = CollapseWhitespace(s[len(m[0]):])
	return code, rest
}
