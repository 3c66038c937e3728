package policy

import (
	"sort"
	"strings"
)

// Match is one catalog substring found in an input.
type Match struct {
	Group   string `json:"group"`
	Pattern string `json:"pattern"`
	Index   int    `json:"index"`
}

// Analysis is the classification of a single value.
type Analysis struct {
	Suspicious   bool     `json:"is_suspicious"`
	Reasons      []string `json:"reasons"`
	Categories   []string `json:"categories"`
	MainCategory string   `json:"main_category,omitempty"`
	Context      string   `json:"context"`
	Matches      []Match  `json:"matches"`
}

// HasCategory reports whether tag was triggered.
func (a Analysis) HasCategory(tag string) bool {
	for _, c := range a.Categories {
		if c == tag {
			return true
		}
	}
	return false
}

// Classifier scans values against an ordered pattern catalog. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	catalog []PatternFamily
}

// NewClassifier creates a classifier over the built-in catalog.
func NewClassifier() *Classifier {
	return &Classifier{catalog: defaultCatalog}
}

// NewClassifierWithCatalog creates a classifier over a custom catalog.
// Patterns are lowercased since matching is done on lowercased input.
func NewClassifierWithCatalog(catalog []PatternFamily) *Classifier {
	c := cloneCatalog(catalog)
	for i := range c {
		for j, p := range c[i].Patterns {
			c[i].Patterns[j] = strings.ToLower(p)
		}
	}
	return &Classifier{catalog: c}
}

// Catalog returns a copy of the families this classifier scans.
func (c *Classifier) Catalog() []PatternFamily {
	return cloneCatalog(c.catalog)
}

// Analyze classifies value. The context is passed through unvalidated.
//
// Matching is a plain substring search on the lowercased value: no Unicode
// normalization and no HTML or URL entity decoding is done, so encoded
// payloads go undetected.
func (c *Classifier) Analyze(value, context string) Analysis {
	result := Analysis{
		Reasons:    []string{},
		Categories: []string{},
		Context:    context,
		Matches:    []Match{},
	}
	if value == "" {
		return result
	}

	lowered := strings.ToLower(value)
	for _, family := range c.catalog {
		for _, pattern := range family.Patterns {
			if idx := strings.Index(lowered, pattern); idx != -1 {
				result.Matches = append(result.Matches, Match{
					Group:   family.Tag,
					Pattern: pattern,
					Index:   idx,
				})
			}
		}
	}
	if len(result.Matches) == 0 {
		return result
	}

	result.Suspicious = true
	result.MainCategory = earliest(result.Matches).Group

	groups := make(map[string]struct{})
	patterns := make(map[string]struct{})
	for _, m := range result.Matches {
		groups[m.Group] = struct{}{}
		patterns[m.Pattern] = struct{}{}
	}
	result.Categories = sortedKeys(groups)
	for _, g := range result.Categories {
		result.Reasons = append(result.Reasons, "group:"+g)
	}
	for _, p := range sortedKeys(patterns) {
		result.Reasons = append(result.Reasons, "pattern:"+p)
	}

	return result
}

// earliest returns the match with the smallest index; on ties the one
// scanned first wins.
func earliest(matches []Match) Match {
	first := matches[0]
	for _, m := range matches[1:] {
		if m.Index < first.Index {
			first = m
		}
	}
	return first
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
