package policy

import (
	"github.com/microcosm-cc/bluemonday"
)

// AllowlistSanitizer rewrites markup against an element allow-list instead
// of escaping it. The lab shows its output next to Secure's so students
// can compare the two approaches; no page renders it.
//
// Safe for concurrent use.
type AllowlistSanitizer struct {
	policy *bluemonday.Policy
}

// NewAllowlistSanitizer returns a sanitizer using the user-generated
// content policy: formatting, links and images survive, scripts, event
// handlers and javascript: URLs do not.
func NewAllowlistSanitizer() *AllowlistSanitizer {
	return &AllowlistSanitizer{policy: bluemonday.UGCPolicy()}
}

// NewStrictAllowlistSanitizer strips every element and keeps text only.
func NewStrictAllowlistSanitizer() *AllowlistSanitizer {
	return &AllowlistSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize returns value with disallowed markup removed.
func (s *AllowlistSanitizer) Sanitize(value string) string {
	if value == "" {
		return ""
	}
	return s.policy.Sanitize(value)
}
