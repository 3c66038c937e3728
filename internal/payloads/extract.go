package payloads

import (
	"strings"

	"golang.org/x/net/html"
)

// Script source kinds
const (
	SourceScriptTag     = "script_tag"
	SourceEventHandler  = "event_handler"
	SourceJavaScriptURL = "javascript_url"
)

// Script is a piece of JavaScript found in a payload
type Script struct {
	Source string `json:"source"`
	// Origin is the tag and attribute the code came from, e.g. "img onerror".
	Origin string `json:"origin"`
	Code   string `json:"code"`
}

var urlAttributes = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"data":       true,
	"xlink:href": true,
}

// ExtractScripts tokenizes markup the way a browser would and returns the
// script bodies, inline event handlers and javascript: URLs it contains,
// in document order. A payload that is itself a javascript: URL counts as
// one script.
func ExtractScripts(markup string) []Script {
	var scripts []Script

	if code, ok := javaScriptURL(markup); ok {
		return append(scripts, Script{Source: SourceJavaScriptURL, Origin: "url", Code: code})
	}

	z := html.NewTokenizer(strings.NewReader(markup))
	inScript := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return scripts

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			for _, attr := range tok.Attr {
				key := strings.ToLower(attr.Key)
				switch {
				case strings.HasPrefix(key, "on") && strings.TrimSpace(attr.Val) != "":
					scripts = append(scripts, Script{
						Source: SourceEventHandler,
						Origin: tok.Data + " " + key,
						Code:   attr.Val,
					})
				case urlAttributes[key]:
					if code, ok := javaScriptURL(attr.Val); ok {
						scripts = append(scripts, Script{
							Source: SourceJavaScriptURL,
							Origin: tok.Data + " " + key,
							Code:   code,
						})
					}
				}
			}
			inScript = tok.Data == "script" && tt == html.StartTagToken

		case html.TextToken:
			if inScript {
				if code := strings.TrimSpace(string(z.Text())); code != "" {
					scripts = append(scripts, Script{Source: SourceScriptTag, Origin: "script", Code: code})
				}
			}

		case html.EndTagToken:
			inScript = false
		}
	}
}

// javaScriptURL returns the code of a javascript: URL. Browsers ignore
// leading whitespace and control characters and match the scheme without
// regard to case.
func javaScriptURL(value string) (string, bool) {
	trimmed := strings.TrimLeftFunc(value, func(r rune) bool { return r <= ' ' })
	const scheme = "javascript:"
	if len(trimmed) < len(scheme) || !strings.EqualFold(trimmed[:len(scheme)], scheme) {
		return "", false
	}
	code := strings.TrimSpace(trimmed[len(scheme):])
	return code, code != ""
}
