package policy

import (
	"reflect"
	"strings"
	"testing"
)

func TestAnalyzeEmpty(t *testing.T) {
	c := NewClassifier()

	a := c.Analyze("", "html")
	if a.Suspicious {
		t.Error("empty input should not be suspicious")
	}
	if len(a.Reasons) != 0 || len(a.Categories) != 0 || len(a.Matches) != 0 {
		t.Errorf("expected no reasons/categories/matches, got %+v", a)
	}
	if a.MainCategory != "" {
		t.Errorf("expected no main category, got %q", a.MainCategory)
	}
	if a.Context != "html" {
		t.Errorf("context not passed through: %q", a.Context)
	}
}

func TestAnalyzeBenign(t *testing.T) {
	c := NewClassifier()

	inputs := []string{
		"hello world",
		"just a normal comment about cats",
		"5 < 6 and 7 > 3",
		"email me at someone@example.com",
		"the onerror handler is described here",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			a := c.Analyze(input, "text")
			if a.Suspicious {
				t.Errorf("Analyze(%q) flagged as suspicious: %v", input, a.Reasons)
			}
			if len(a.Categories) != 0 {
				t.Errorf("Analyze(%q) categories = %v, want none", input, a.Categories)
			}
			if a.MainCategory != "" {
				t.Errorf("Analyze(%q) main category = %q, want none", input, a.MainCategory)
			}
		})
	}
}

func TestAnalyzeScriptTag(t *testing.T) {
	c := NewClassifier()

	inputs := []string{
		"<script>alert(1)</script>",
		"<SCRIPT SRC=//evil.example/x.js>",
		"prefix text <ScRiPt>",
		"<script",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			a := c.Analyze(input, "html")
			if !a.Suspicious {
				t.Fatalf("Analyze(%q) not suspicious", input)
			}
			if !a.HasCategory(FamilyScriptTag) {
				t.Errorf("Analyze(%q) categories = %v, want %q", input, a.Categories, FamilyScriptTag)
			}
		})
	}
}

func TestAnalyzeScriptPayload(t *testing.T) {
	c := NewClassifier()

	a := c.Analyze("<script>alert(1)</script>", "html")

	wantCategories := []string{FamilyNeutralPolyglot, FamilyScriptTag}
	if !reflect.DeepEqual(a.Categories, wantCategories) {
		t.Errorf("categories = %v, want %v", a.Categories, wantCategories)
	}
	if a.MainCategory != FamilyScriptTag {
		t.Errorf("main category = %q, want %q", a.MainCategory, FamilyScriptTag)
	}

	wantReasons := []string{
		"group:neutral_polyglot",
		"group:script_tag",
		"pattern:</script",
		"pattern:<script",
		"pattern:alert(",
	}
	if !reflect.DeepEqual(a.Reasons, wantReasons) {
		t.Errorf("reasons = %v, want %v", a.Reasons, wantReasons)
	}

	wantMatches := []Match{
		{Group: FamilyScriptTag, Pattern: "<script", Index: 0},
		{Group: FamilyScriptTag, Pattern: "</script", Index: 16},
		{Group: FamilyNeutralPolyglot, Pattern: "alert(", Index: 8},
	}
	if !reflect.DeepEqual(a.Matches, wantMatches) {
		t.Errorf("matches = %+v, want %+v", a.Matches, wantMatches)
	}
}

func TestAnalyzeImageEvent(t *testing.T) {
	c := NewClassifier()

	a := c.Analyze("<img src=x onerror=alert(1)>", "html")

	if !a.HasCategory(FamilyImageTag) || !a.HasCategory(FamilyEvent) {
		t.Fatalf("expected image_tag and event, got %v", a.Categories)
	}
	if a.MainCategory != FamilyImageTag {
		t.Errorf("main category = %q, want %q", a.MainCategory, FamilyImageTag)
	}
}

func TestMainCategoryEarliestIndex(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"event before tag", "x onclick=go() <img>", FamilyEvent},
		{"scheme first", "javascript:document.cookie", FamilyScheme},
		{"sink first", "document.cookie then <script>", FamilyDOMSink},
		// "<svg" (active_tag) and "<svg><script" (neutral_polyglot) both sit at
		// index 0; active_tag is declared first.
		{"tie goes to catalog order", "<svg><script>", FamilyActiveTag},
		{"comment marker", "<!-- hidden -->", FamilyHTMLLike},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := c.Analyze(tt.input, "html")
			if a.MainCategory != tt.want {
				t.Errorf("Analyze(%q).MainCategory = %q, want %q (matches %+v)", tt.input, a.MainCategory, tt.want, a.Matches)
			}
		})
	}
}

func TestReasonsBlocksSorted(t *testing.T) {
	c := NewClassifier()

	a := c.Analyze("<iframe srcdoc=x onload=eval(1)></iframe><img>", "html")

	var groups, patterns []string
	seenPattern := false
	for _, r := range a.Reasons {
		switch {
		case strings.HasPrefix(r, "group:"):
			if seenPattern {
				t.Fatalf("group reason %q after pattern reasons: %v", r, a.Reasons)
			}
			groups = append(groups, r)
		case strings.HasPrefix(r, "pattern:"):
			seenPattern = true
			patterns = append(patterns, r)
		default:
			t.Fatalf("unexpected reason %q", r)
		}
	}

	if len(groups) != len(a.Categories) {
		t.Errorf("got %d group reasons for %d categories", len(groups), len(a.Categories))
	}
	if !isSorted(groups) || !isSorted(patterns) {
		t.Errorf("reason blocks not sorted: %v", a.Reasons)
	}
	if !isSorted(a.Categories) {
		t.Errorf("categories not sorted: %v", a.Categories)
	}
}

func TestAnalyzeDoesNotDecode(t *testing.T) {
	c := NewClassifier()

	inputs := []string{
		"&lt;script&gt;alert`1`&lt;/script&gt;",
		"%3Cscript%3E",
		"\\u003cscript\\u003e",
	}
	for _, input := range inputs {
		if a := c.Analyze(input, "html"); a.HasCategory(FamilyScriptTag) {
			t.Errorf("Analyze(%q) decoded input and found script_tag", input)
		}
	}
}

func TestCustomCatalog(t *testing.T) {
	c := NewClassifierWithCatalog([]PatternFamily{
		{Tag: "shout", Patterns: []string{"HELLO"}},
	})

	a := c.Analyze("well hello there", "text")
	if !a.Suspicious || a.MainCategory != "shout" {
		t.Errorf("expected custom family match, got %+v", a)
	}
}

func TestDefaultCatalogIsCopy(t *testing.T) {
	cat := DefaultCatalog()
	cat[0].Patterns[0] = "mutated"

	a := NewClassifier().Analyze("<script>", "html")
	if !a.HasCategory(FamilyScriptTag) {
		t.Error("mutating DefaultCatalog result changed the classifier")
	}

	tags := FamilyTags()
	if len(tags) != 10 || tags[0] != FamilyScriptTag || tags[9] != FamilyHTMLLike {
		t.Errorf("unexpected family tags: %v", tags)
	}
}

func TestNormalizationGap(t *testing.T) {
	c := NewClassifier()

	gap := c.NormalizationGap("＜script＞alert(1)")
	if !reflect.DeepEqual(gap, []string{FamilyScriptTag}) {
		t.Errorf("gap = %v, want [script_tag]", gap)
	}

	gap = c.NormalizationGap("<scr\u200bipt>x</scr\u200bipt>")
	if !reflect.DeepEqual(gap, []string{FamilyScriptTag}) {
		t.Errorf("zero-width gap = %v, want [script_tag]", gap)
	}

	gap = c.NormalizationGap("<img src=x on\u200berror=alert(1)>")
	if !reflect.DeepEqual(gap, []string{FamilyEvent}) {
		t.Errorf("handler gap = %v, want [event]", gap)
	}

	if gap := c.NormalizationGap("<script>"); len(gap) != 0 {
		t.Errorf("plain ASCII should have no gap, got %v", gap)
	}

	// The gap is diagnostic only.
	if a := c.Analyze("＜script＞", "html"); a.Suspicious {
		t.Errorf("fullwidth payload should stay undetected by Analyze, got %v", a.Reasons)
	}
}

func isSorted(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}
