package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type levelCounter map[string]int

func (c levelCounter) ObserveSecurityEvent(level string) { c[level]++ }

func newTestService(size int) (*Service, *bytes.Buffer, levelCounter) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	counter := levelCounter{}
	return NewService(size, logger, counter), &buf, counter
}

func TestRecordEvent(t *testing.T) {
	svc, buf, counter := newTestService(10)

	svc.RecordEvent(slog.LevelWarn, "Suspicious input detected", map[string]any{
		"context": "html",
		"reasons": []string{"group:script_tag", "pattern:<script"},
		"value":   "<script>alert(1)</script>",
		"matches": []string{"<script"},
	})

	events := svc.Recent(0)
	require.Len(t, events, 1)
	e := events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "warn", e.Level)
	assert.Equal(t, "Suspicious input detected", e.Message)
	assert.Equal(t, "html", e.Context)
	assert.Equal(t, []string{"group:script_tag", "pattern:<script"}, e.Reasons)
	assert.Equal(t, "<script>alert(1)</script>", e.Value)
	assert.Contains(t, e.Fields, "matches")
	assert.False(t, e.Time.IsZero())

	assert.Equal(t, 1, counter["warn"])

	var logged map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logged))
	assert.Equal(t, "WARN", logged["level"])
	assert.Equal(t, "Suspicious input detected", logged["msg"])
	assert.Equal(t, "html", logged["context"])
	assert.Equal(t, e.ID, logged["event_id"])
}

func TestRingBuffer(t *testing.T) {
	svc, _, _ := newTestService(3)

	for i := 0; i < 5; i++ {
		svc.RecordEvent(slog.LevelWarn, fmt.Sprintf("event %d", i), nil)
	}

	assert.Equal(t, 3, svc.Len())
	events := svc.Recent(0)
	require.Len(t, events, 3)
	assert.Equal(t, "event 2", events[0].Message)
	assert.Equal(t, "event 4", events[2].Message)

	latest := svc.Recent(2)
	require.Len(t, latest, 2)
	assert.Equal(t, "event 3", latest[0].Message)
}

func TestRecentEmpty(t *testing.T) {
	svc, _, _ := newTestService(0)
	assert.Empty(t, svc.Recent(10))
	assert.Equal(t, 0, svc.Len())
	assert.Len(t, svc.events, DefaultBufferSize)
}

func TestForRequest(t *testing.T) {
	svc, _, _ := newTestService(10)

	req := httptest.NewRequest("GET", "/search?q=x", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("User-Agent", "lab-test")
	req = req.WithContext(WithRequestID(req.Context(), "req-123"))

	svc.ForRequest(req).RecordEvent(slog.LevelWarn, "Suspicious input detected", map[string]any{"context": "text"})

	events := svc.Recent(0)
	require.Len(t, events, 1)
	assert.Equal(t, "req-123", events[0].RequestID)
	assert.Equal(t, "203.0.113.7", events[0].IPAddress)
	assert.Equal(t, "lab-test", events[0].UserAgent)
	assert.Equal(t, "text", events[0].Context)
}

func TestExtractRequestInfo(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"forwarded for wins", map[string]string{"X-Forwarded-For": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, "3.3.3.3:1234", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "2.2.2.2"}, "3.3.3.3:1234", "2.2.2.2"},
		{"remote addr without port", nil, "3.3.3.3:1234", "3.3.3.3"},
		{"remote addr without port suffix", nil, "unix-socket", "unix-socket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			ip, _ := ExtractRequestInfo(req)
			assert.Equal(t, tt.wantIP, ip)
		})
	}

	ip, ua := ExtractRequestInfo(nil)
	assert.Empty(t, ip)
	assert.Empty(t, ua)
}

func TestRequestIDFromContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, RequestIDFromContext(req.Context()))
	assert.Equal(t, "abc", RequestIDFromContext(WithRequestID(req.Context(), "abc")))
}
