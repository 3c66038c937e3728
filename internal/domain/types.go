// Package domain contains the core domain types for xsslab.
package domain

import (
	"time"
)

// Comment is a stored-XSS scenario record.
type Comment struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a contact-form submission, rendered later in the admin panel
// (blind-XSS scenario).
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// StolenCookie is one hit on the cookie collector endpoint.
type StolenCookie struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Cookie    string    `json:"cookie"`
}

// AdminPanel identifies an admin page
type AdminPanel string

const (
	AdminPanelMessages AdminPanel = "messages"
	AdminPanelCookies  AdminPanel = "cookies"
	AdminPanelEvents   AdminPanel = "events"
)

// AdminView records an admin opening a panel. For the messages panel this
// is the moment stored blind-XSS payloads execute.
type AdminView struct {
	Timestamp    time.Time  `json:"timestamp"`
	Panel        AdminPanel `json:"panel"`
	MessageCount int        `json:"message_count"`
}

// SecurityEvent is a suspicious-input record emitted by the mitigation
// layer in log mode.
type SecurityEvent struct {
	ID        string         `json:"id"`
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   string         `json:"context,omitempty"`
	Reasons   []string       `json:"reasons,omitempty"`
	Value     string         `json:"value,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
}
