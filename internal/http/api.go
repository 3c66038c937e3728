package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"xsslab/internal/audit"
	"xsslab/internal/domain"
	"xsslab/internal/payloads"
	"xsslab/internal/policy"
)

const defaultEventLimit = 50

// handleSteal is the cookie collector. Payloads send document.cookie here
// as ?c=; empty values are ignored.
func (s *Server) handleSteal(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("c")
	if value != "" {
		ip, _ := audit.ExtractRequestInfo(r)
		if ip == "" {
			ip = "unknown"
		}
		entry := domain.StolenCookie{Timestamp: s.now(), IP: ip, Cookie: value}
		if err := s.store.RecordStolenCookie(r.Context(), entry); err != nil {
			slog.Error("Failed to record collected cookie", "error", err)
			s.writeError(w, http.StatusInternalServerError, "server_error", "failed to record cookie")
			return
		}
		s.metrics.RecordCollectedCookie()
		slog.Info("Collected cookie", "ip", ip, "request_id", audit.RequestIDFromContext(r.Context()))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	s.recordAdminView(r, domain.AdminPanelEvents, s.audit.Len())

	events := s.audit.Recent(limit)
	s.writeJSON(w, http.StatusOK, EventListResponse{
		Events:   events,
		Count:    len(events),
		Buffered: s.audit.Len(),
	})
}

// handleTestPayload analyzes and secures one payload under the active
// mode. A missing or non-JSON body is treated as an empty object.
func (s *Server) handleTestPayload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody()))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}

	var req TestPayloadRequest
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && trimmed != "null" {
		if err := s.validator.Decode(body, &req); err != nil && !errors.Is(err, ErrNotJSON) {
			s.writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
			return
		}
	}

	payload := ""
	if req.Payload != nil {
		payload = *req.Payload
	}
	ctx := contextHTML
	if req.Context != nil && *req.Context != "" {
		ctx = strings.ToLower(*req.Context)
	}

	mode := s.mode()
	sanitized, analysis := s.securerFor(r).SecureAnalyzed(payload, ctx, mode)
	classifier := s.securer.Classifier()

	category := analysis.MainCategory
	if category == "" {
		category = "benign"
		if analysis.Suspicious {
			category = "unknown"
		}
	}

	resp := TestPayloadResponse{
		Original:         payload,
		Sanitized:        sanitized,
		Allowlisted:      s.allowlist(ctx).Sanitize(payload),
		Blocked:          mode == policy.ModeBlock && analysis.Suspicious,
		Category:         category,
		Mode:             mode.String(),
		IsSuspicious:     analysis.Suspicious,
		Reasons:          analysis.Reasons,
		Categories:       analysis.Categories,
		Context:          ctx,
		Matches:          analysis.Matches,
		NormalizationGap: classifier.NormalizationGap(payload),
		NearMisses:       classifier.NearMisses(payload),
	}

	if req.Emulate != nil && *req.Emulate {
		result := s.emulator.RunPayload(r.Context(), payload)
		s.metrics.RecordEmulation(result.Outcome)
		resp.Emulation = &result
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleListPayloads returns the sample library with each payload's
// analysis, secured output and sandbox run.
func (s *Server) handleListPayloads(w http.ResponseWriter, r *http.Request) {
	collector := r.URL.Query().Get("collector")
	if collector == "" {
		collector = s.collector()
	}

	mode := s.mode()
	emulator := payloads.NewEmulator(s.emulator.Timeout, collector)

	lib := payloads.Library(collector)
	reports := make([]PayloadReport, 0, len(lib))
	for _, p := range lib {
		result := emulator.RunPayload(r.Context(), p.Value)
		s.metrics.RecordEmulation(result.Outcome)
		secured, analysis := s.quiet.SecureAnalyzed(p.Value, contextHTML, mode)
		reports = append(reports, PayloadReport{
			Payload:     p,
			Analysis:    analysis,
			Secured:     secured,
			Allowlisted: s.ugc.Sanitize(p.Value),
			Emulation:   result,
		})
	}

	s.writeJSON(w, http.StatusOK, PayloadListResponse{
		Mode:      mode.String(),
		Collector: emulator.Collector,
		Payloads:  reports,
	})
}
