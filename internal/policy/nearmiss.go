package policy

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// NearMiss is a fragment of an input that is a small edit away from a
// catalog pattern without matching it.
type NearMiss struct {
	Group    string `json:"group"`
	Pattern  string `json:"pattern"`
	Fragment string `json:"fragment"`
	Index    int    `json:"index"`
	Distance int    `json:"distance"`
}

const (
	// Only the start of a value is scanned.
	maxNearMissScan = 1024
	// Shorter patterns are one edit away from too much ordinary text.
	minNearMissPattern = 6
)

// NearMisses reports catalog patterns that appear in value with a typo:
// at most one edit for six-character patterns and two for longer ones,
// e.g. "<scirpt" or "onerorr=". Like NormalizationGap it is a diagnostic
// and has no effect on Analyze or Secure. Fragments overlapping an exact
// match are ignored, and each pattern is reported once, at its earliest
// fragment.
func (c *Classifier) NearMisses(value string) []NearMiss {
	misses := []NearMiss{}
	if value == "" {
		return misses
	}

	text := strings.ToLower(truncateUTF8(value, maxNearMissScan))
	covered := c.exactSpans(text)

	for _, family := range c.catalog {
		for _, pattern := range family.Patterns {
			if len(pattern) < minNearMissPattern || strings.Contains(text, pattern) {
				continue
			}
			if m, ok := nearestFragment(text, pattern, covered); ok {
				m.Group = family.Tag
				misses = append(misses, m)
			}
		}
	}

	sort.SliceStable(misses, func(i, j int) bool {
		return misses[i].Index < misses[j].Index
	})
	return misses
}

// exactSpans marks every byte of text covered by an exact catalog match.
func (c *Classifier) exactSpans(text string) []bool {
	covered := make([]bool, len(text))
	for _, family := range c.catalog {
		for _, pattern := range family.Patterns {
			for from := 0; from < len(text); {
				idx := strings.Index(text[from:], pattern)
				if idx < 0 {
					break
				}
				start := from + idx
				for i := start; i < start+len(pattern); i++ {
					covered[i] = true
				}
				from = start + 1
			}
		}
	}
	return covered
}

func nearestFragment(text, pattern string, covered []bool) (NearMiss, bool) {
	maxDist := 1
	if len(pattern) > minNearMissPattern {
		maxDist = 2
	}

	for start := 0; start < len(text); start++ {
		if !plausibleStart(text, start, pattern, maxDist) {
			continue
		}
		best := NearMiss{Distance: maxDist + 1}
		for size := len(pattern) - maxDist; size <= len(pattern)+maxDist; size++ {
			end := start + size
			if size <= 0 || end > len(text) || overlaps(covered, start, end) {
				continue
			}
			window := text[start:end]
			if !utf8.ValidString(window) || !hasPunct(window) {
				continue
			}
			if d := levenshtein.ComputeDistance(window, pattern); d > 0 && d < best.Distance {
				best = NearMiss{Pattern: pattern, Fragment: window, Index: start, Distance: d}
			}
		}
		if best.Distance <= maxDist {
			return best, true
		}
	}
	return NearMiss{}, false
}

// plausibleStart rejects positions where none of the first maxDist+1 bytes
// of the window appear among the first maxDist+1 bytes of the pattern. In
// ASCII text no fragment within maxDist edits of the pattern starts there.
func plausibleStart(text string, start int, pattern string, maxDist int) bool {
	head := pattern[:min(maxDist+1, len(pattern))]
	for i := start; i < len(text) && i <= start+maxDist; i++ {
		if strings.IndexByte(head, text[i]) >= 0 {
			return true
		}
	}
	return false
}

func overlaps(covered []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if covered[i] {
			return true
		}
	}
	return false
}

// hasPunct keeps plain words like "alerts" from counting as near misses.
func hasPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
