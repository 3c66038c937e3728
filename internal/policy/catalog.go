// Package policy implements the XSS classification and output-securing engine.
// catalog.go holds the signature families the classifier scans for.
package policy

// PatternFamily is a named group of literal, lowercase substrings associated
// with one category of XSS technique.
type PatternFamily struct {
	Tag      string
	Patterns []string
}

// Family tags
const (
	FamilyScriptTag       = "script_tag"
	FamilyActiveTag       = "active_tag"
	FamilyImageTag        = "image_tag"
	FamilyFormTag         = "form_tag"
	FamilyMetaTag         = "meta_tag"
	FamilyScheme          = "scheme"
	FamilyEvent           = "event"
	FamilyDOMSink         = "dom_sink"
	FamilyNeutralPolyglot = "neutral_polyglot"
	FamilyHTMLLike        = "html_like"
)

// defaultCatalog is scanned in declaration order; that order also breaks
// main-category ties.
var defaultCatalog = []PatternFamily{
	{
		// Direct script injection
		Tag: FamilyScriptTag,
		Patterns: []string{
			"<script",
			"</script",
		},
	},
	{
		// Active / embedded content
		Tag: FamilyActiveTag,
		Patterns: []string{
			"<iframe",
			"<frame",
			"<frameset",
			"srcdoc=",
			"<svg",
			"<math",
			"<object",
			"<embed",
			"<video",
			"<audio",
			"<source",
		},
	},
	{
		Tag: FamilyImageTag,
		Patterns: []string{
			"<img",
			"<image",
			"srcset=",
			"xlink:href",
		},
	},
	{
		Tag: FamilyFormTag,
		Patterns: []string{
			"<form",
			"<input",
			"<textarea",
			"<button",
			"<select",
			"onsubmit=",
			"onreset=",
		},
	},
	{
		// Meta refresh and charset tricks
		Tag: FamilyMetaTag,
		Patterns: []string{
			"<meta",
			`http-equiv="refresh`,
			"http-equiv='refresh",
			"charset=",
		},
	},
	{
		// Dangerous URI schemes
		Tag: FamilyScheme,
		Patterns: []string{
			"javascript:",
			"data:text/html",
			"data:text/javascript",
			"vbscript:",
		},
	},
	{
		Tag: FamilyEvent,
		Patterns: []string{
			"onerror=",
			"onload=",
			"onclick=",
			"onmouseover=",
			"onmouseenter=",
			"onmouseleave=",
			"onfocus=",
			"onblur=",
			"onkeydown=",
			"onkeyup=",
			"onkeypress=",
			"onpointerdown=",
			"onpointerup=",
			"onwheel=",
		},
	},
	{
		Tag: FamilyDOMSink,
		Patterns: []string{
			"document.write",
			"document.writeln",
			"document.cookie",
			"document.location",
			"window.location",
			"location.href",
			"innerhtml",
			"outerhtml",
			"eval(",
			"settimeout(",
			"setinterval(",
		},
	},
	{
		// Polyglot fragments that break out of script or string contexts
		Tag: FamilyNeutralPolyglot,
		Patterns: []string{
			"</script><svg",
			"<svg><script",
			`";alert(`,
			"';alert(",
			"`;alert(",
			"alert(",
		},
	},
	{
		// Generic HTML-like content, low risk
		Tag: FamilyHTMLLike,
		Patterns: []string{
			"<html",
			"<body",
			"</html",
			"</body",
			"<!--",
			"-->",
		},
	},
}

// DefaultCatalog returns a copy of the built-in signature families.
func DefaultCatalog() []PatternFamily {
	return cloneCatalog(defaultCatalog)
}

// FamilyTags returns the tags of the built-in families in catalog order.
func FamilyTags() []string {
	tags := make([]string, 0, len(defaultCatalog))
	for _, f := range defaultCatalog {
		tags = append(tags, f.Tag)
	}
	return tags
}

func cloneCatalog(src []PatternFamily) []PatternFamily {
	out := make([]PatternFamily, len(src))
	for i, f := range src {
		out[i] = PatternFamily{
			Tag:      f.Tag,
			Patterns: append([]string(nil), f.Patterns...),
		}
	}
	return out
}
