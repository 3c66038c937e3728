package policy

import (
	"net/http"
)

// Header values applied in protected modes.
const (
	ContentSecurityPolicy = "default-src 'self'; script-src 'self'; object-src 'none';"
	ContentTypeOptions    = "nosniff"
	FrameOptions          = "DENY"
)

// ApplySecurityHeaders adds CSP, anti-sniffing and anti-framing headers when
// mode is protected. Existing values are never overwritten, so repeated calls
// are no-ops.
func ApplySecurityHeaders(h http.Header, mode Mode) http.Header {
	if !mode.Protected() {
		return h
	}
	setDefault(h, "Content-Security-Policy", ContentSecurityPolicy)
	setDefault(h, "X-Content-Type-Options", ContentTypeOptions)
	setDefault(h, "X-Frame-Options", FrameOptions)
	return h
}

func setDefault(h http.Header, key, value string) {
	if _, ok := h[http.CanonicalHeaderKey(key)]; ok {
		return
	}
	h.Set(key, value)
}

// SecurityHeaders applies ApplySecurityHeaders to every response just before
// its headers are written, so values set by next take precedence.
func SecurityHeaders(modes ModeSource, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hw := &headerWriter{ResponseWriter: w, mode: ResolveMode(modes)}
		next.ServeHTTP(hw, r)
		hw.apply()
	})
}

// headerWriter defers header augmentation until the first write.
type headerWriter struct {
	http.ResponseWriter
	mode    Mode
	applied bool
}

func (w *headerWriter) apply() {
	if w.applied {
		return
	}
	w.applied = true
	ApplySecurityHeaders(w.Header(), w.mode)
}

func (w *headerWriter) WriteHeader(status int) {
	w.apply()
	w.ResponseWriter.WriteHeader(status)
}

func (w *headerWriter) Write(b []byte) (int, error) {
	w.apply()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *headerWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
