// Package audit records suspicious-input events raised by the mitigation
// layer. Events are written to the structured log and kept in a bounded
// in-memory buffer for the admin events page.
package audit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"xsslab/internal/domain"
)

// DefaultBufferSize is used when NewService gets a non-positive size.
const DefaultBufferSize = 200

// Observer is notified for every recorded event
type Observer interface {
	ObserveSecurityEvent(level string)
}

// Service handles security event logging
type Service struct {
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	mu     sync.Mutex
	events []domain.SecurityEvent
	next   int
	full   bool
}

// NewService creates a service that keeps the last size events. A nil
// logger uses slog.Default().
func NewService(size int, logger *slog.Logger, observer Observer) *Service {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:   logger,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
		events:   make([]domain.SecurityEvent, size),
	}
}

// RecordEvent logs and stores an event that is not tied to a request.
func (s *Service) RecordEvent(level slog.Level, message string, fields map[string]any) {
	s.record(RequestInfo{}, level, message, fields)
}

// ForRequest returns a recorder that stamps events with the request's ID,
// client address and user agent.
func (s *Service) ForRequest(r *http.Request) *RequestRecorder {
	return &RequestRecorder{service: s, info: RequestInfoFrom(r)}
}

// Recent returns up to limit events, oldest first. A non-positive limit
// returns everything buffered.
func (s *Service) Recent(limit int) []domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ordered []domain.SecurityEvent
	if s.full {
		ordered = append(ordered, s.events[s.next:]...)
	}
	ordered = append(ordered, s.events[:s.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// Len returns the number of buffered events
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return len(s.events)
	}
	return s.next
}

func (s *Service) record(info RequestInfo, level slog.Level, message string, fields map[string]any) {
	event := domain.SecurityEvent{
		ID:        uuid.New().String(),
		Time:      s.now(),
		Level:     strings.ToLower(level.String()),
		Message:   message,
		RequestID: info.RequestID,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
	}

	extra := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "context":
			event.Context, _ = v.(string)
		case "value":
			event.Value, _ = v.(string)
		case "reasons":
			if reasons, ok := v.([]string); ok {
				event.Reasons = append([]string(nil), reasons...)
			}
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		event.Fields = extra
	}

	attrs := []any{
		"event_id", event.ID,
		"context", event.Context,
		"reasons", event.Reasons,
		"value", event.Value,
	}
	if m, ok := extra["matches"]; ok {
		attrs = append(attrs, "matches", m)
	}
	if info.RequestID != "" {
		attrs = append(attrs, "request_id", info.RequestID, "ip", info.IPAddress)
	}
	s.logger.Log(context.Background(), level, message, attrs...)

	s.mu.Lock()
	s.events[s.next] = event
	s.next++
	if s.next == len(s.events) {
		s.next = 0
		s.full = true
	}
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveSecurityEvent(event.Level)
	}
}

// RequestRecorder records events on behalf of one request
type RequestRecorder struct {
	service *Service
	info    RequestInfo
}

func (r *RequestRecorder) RecordEvent(level slog.Level, message string, fields map[string]any) {
	r.service.record(r.info, level, message, fields)
}

// =============================================================================
// Request info
// =============================================================================

// RequestInfo identifies the request an event came from
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// RequestInfoFrom reads the request ID from the request context and the
// client details from headers.
func RequestInfoFrom(r *http.Request) RequestInfo {
	if r == nil {
		return RequestInfo{}
	}
	ip, ua := ExtractRequestInfo(r)
	return RequestInfo{
		RequestID: RequestIDFromContext(r.Context()),
		IPAddress: ip,
		UserAgent: ua,
	}
}

// ExtractRequestInfo extracts the client address and user agent. The
// address comes from X-Forwarded-For, then X-Real-IP, then the connection,
// with the port stripped.
func ExtractRequestInfo(r *http.Request) (ipAddress, userAgent string) {
	if r == nil {
		return "", ""
	}

	ipAddress = strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if ipAddress == "" {
		ipAddress = strings.TrimSpace(r.Header.Get("X-Real-IP"))
	}
	if ipAddress == "" {
		ipAddress = r.RemoteAddr
		if host, _, err := net.SplitHostPort(ipAddress); err == nil {
			ipAddress = host
		}
	}

	userAgent = r.Header.Get("User-Agent")
	return
}

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID stores the request ID in the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" if none was set
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
