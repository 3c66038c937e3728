package http

import (
	"xsslab/internal/domain"
	"xsslab/internal/payloads"
	"xsslab/internal/policy"
)

// TestPayloadRequest is the body of POST /api/test_payload
type TestPayloadRequest struct {
	Payload *string `json:"payload"`
	Context *string `json:"context"`
	Emulate *bool   `json:"emulate"`
}

// TestPayloadResponse reports how a payload is classified and rendered
// under the active mode. Allowlisted is the payload run through an
// allow-list sanitizer instead, for comparison with Sanitized.
type TestPayloadResponse struct {
	Original     string         `json:"original"`
	Sanitized    string         `json:"sanitized"`
	Allowlisted  string         `json:"allowlisted"`
	Blocked      bool           `json:"blocked"`
	Category     string         `json:"category"`
	Mode         string         `json:"mode"`
	IsSuspicious bool           `json:"is_suspicious"`
	Reasons      []string       `json:"reasons"`
	Categories   []string       `json:"categories"`
	Context      string         `json:"context"`
	Matches      []policy.Match `json:"matches"`
	// NormalizationGap lists categories hidden behind compatibility
	// characters such as fullwidth brackets.
	NormalizationGap []string `json:"normalization_gap"`
	// NearMisses lists catalog patterns present with a typo, such as
	// "<scirpt".
	NearMisses []policy.NearMiss `json:"near_misses"`
	Emulation  *payloads.Result  `json:"emulation,omitempty"`
}

// PayloadReport is one entry of GET /api/payloads
type PayloadReport struct {
	payloads.Payload
	Analysis    policy.Analysis `json:"analysis"`
	Secured     string          `json:"secured"`
	Allowlisted string          `json:"allowlisted"`
	Emulation   payloads.Result `json:"emulation"`
}

// PayloadListResponse is the body of GET /api/payloads
type PayloadListResponse struct {
	Mode      string          `json:"mode"`
	Collector string          `json:"collector"`
	Payloads  []PayloadReport `json:"payloads"`
}

// EventListResponse is the body of GET /admin/events
type EventListResponse struct {
	Events   []domain.SecurityEvent `json:"events"`
	Count    int                    `json:"count"`
	Buffered int                    `json:"buffered"`
}

// HealthResponse is the body of the health and readiness probes
type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
