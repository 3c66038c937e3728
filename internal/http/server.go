// Package http serves the lab pages, the cookie collector and the JSON
// API used to experiment with payloads.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"

	"xsslab/internal/audit"
	"xsslab/internal/config"
	"xsslab/internal/payloads"
	"xsslab/internal/policy"
	"xsslab/internal/storage"
	"xsslab/internal/telemetry"
)

// Server is the HTTP server
type Server struct {
	config    *config.Config
	store     storage.Store
	securer   *policy.Securer
	quiet     *policy.Securer
	audit     *audit.Service
	metrics   *telemetry.Metrics
	emulator  *payloads.Emulator
	validator *SchemaValidator
	ugc       *policy.AllowlistSanitizer
	strict    *policy.AllowlistSanitizer
	pages     map[string]*template.Template
	mux       *http.ServeMux
	now       func() time.Time
}

// NewServer creates a new HTTP server. A nil audit service gets a private
// one; a nil metrics set gets a fresh registry.
func NewServer(
	cfg *config.Config,
	store storage.Store,
	auditService *audit.Service,
	metrics *telemetry.Metrics,
) (*Server, error) {
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}
	if auditService == nil {
		auditService = audit.NewService(cfg.Security.EventBufferSize, nil, metrics)
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	validator, err := NewSchemaValidator(testPayloadSchema)
	if err != nil {
		return nil, err
	}

	securer := policy.NewSecurer(policy.NewClassifier(), auditService, metrics)

	s := &Server{
		config:  cfg,
		store:   store,
		securer: securer,
		// The payload catalog is rendered on every /api/payloads call and
		// would otherwise flood the event buffer.
		quiet:     securer.WithRecorder(nil),
		audit:     auditService,
		metrics:   metrics,
		emulator:  payloads.NewEmulator(cfg.Lab.EmulationTimeout, cfg.Lab.CollectorURL),
		validator: validator,
		ugc:       policy.NewAllowlistSanitizer(),
		strict:    policy.NewStrictAllowlistSanitizer(),
		pages:     pages,
		mux:       http.NewServeMux(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	if s.config.Telemetry.PrometheusEnabled {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.mux.Handle("GET /static/", staticHandler())

	// Lab pages
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("GET /comments", s.handleComments)
	s.mux.HandleFunc("POST /comments", s.handleAddComment)
	s.mux.HandleFunc("GET /contact", s.handleContact)
	s.mux.HandleFunc("POST /contact", s.handleSendMessage)

	// Cookie collector
	s.mux.HandleFunc("GET /steal", s.handleSteal)

	// Admin panels
	s.mux.HandleFunc("GET /admin/messages", s.withAdminAuth(s.handleAdminMessages))
	s.mux.HandleFunc("GET /admin/cookies", s.withAdminAuth(s.handleAdminCookies))
	s.mux.HandleFunc("GET /admin/events", s.withAdminAuth(s.handleAdminEvents))

	// JSON API
	s.mux.HandleFunc("POST /api/test_payload", s.handleTestPayload)
	s.mux.HandleFunc("GET /api/payloads", s.handleListPayloads)
}

// Handler returns the HTTP handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.requestIDMiddleware(
		s.metrics.Middleware(
			policy.SecurityHeaders(s.config, s.mux),
		),
	)
}

// requestIDMiddleware tags every request with an ID. A well-formed
// X-Request-ID from the client is kept, anything else is replaced.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(audit.WithRequestID(r.Context(), id)))
	})
}

// mode resolves the security mode for the current request
func (s *Server) mode() policy.Mode {
	return policy.ResolveMode(s.config)
}

// securerFor returns a securer whose events carry the request's details
func (s *Server) securerFor(r *http.Request) *policy.Securer {
	return s.securer.WithRecorder(s.audit.ForRequest(r))
}

// allowlist picks the allow-list policy for a render context; text
// contexts keep no markup at all.
func (s *Server) allowlist(ctx string) *policy.AllowlistSanitizer {
	if ctx == contextText {
		return s.strict
	}
	return s.ugc
}

func (s *Server) maxBody() int64 {
	if s.config.Server.MaxRequestSize > 0 {
		return s.config.Server.MaxRequestSize
	}
	return 1 << 20
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Mode: s.mode().String()})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Type:    errType,
			Message: message,
		},
	})
}

// Start starts the HTTP server and shuts it down when ctx is done. It
// returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:           addr,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 16,
	}

	shutdownTimeout := s.config.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
