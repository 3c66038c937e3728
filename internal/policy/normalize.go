package policy

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizationGap reports the categories that only appear once value is
// NFKC-normalized and stripped of invisible characters, e.g. fullwidth
// "＜script＞" or "<scr\u200bipt>". It is a diagnostic for the lab's
// payload API and has no effect on Analyze or Secure, which match on the
// lowercased value as-is.
func (c *Classifier) NormalizationGap(value string) []string {
	normalized := Normalize(value)
	if normalized == value {
		return []string{}
	}

	seen := make(map[string]struct{})
	for _, tag := range c.Analyze(value, "").Categories {
		seen[tag] = struct{}{}
	}

	gap := make(map[string]struct{})
	for _, tag := range c.Analyze(normalized, "").Categories {
		if _, ok := seen[tag]; !ok {
			gap[tag] = struct{}{}
		}
	}
	return sortedKeys(gap)
}

// Normalize applies NFKC and drops zero-width and control characters a
// browser would not render.
func Normalize(value string) string {
	return removeInvisibleChars(norm.NFKC.String(value))
}

func removeInvisibleChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		switch r {
		case '\u200B', '\u200C', '\u200D', '\u200E', '\u200F', // zero-width
			'\u2060', '\u2061', '\u2062', '\u2063', '\u2064', // word joiner, invisible operators
			'\uFEFF': // BOM
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
