package http

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"xsslab/internal/domain"
	"xsslab/internal/payloads"
	"xsslab/internal/policy"
)

// Rendering contexts passed to the securer
const (
	contextText = "text"
	contextHTML = "html"
)

func (s *Server) page(title string) pageData {
	return pageData{Title: title, Mode: s.mode().String()}
}

func (s *Server) collector() string {
	if s.config.Lab.CollectorURL != "" {
		return s.config.Lab.CollectorURL
	}
	return payloads.DefaultCollector
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pageIndex, struct {
		pageData
		Collector string
		Payloads  []payloads.Payload
	}{
		pageData:  s.page("Home"),
		Collector: s.collector(),
		Payloads:  payloads.Library(s.config.Lab.CollectorURL),
	})
}

// handleSearch is the reflected scenario: the query goes straight back
// into the page.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	mode := s.mode()

	s.render(w, http.StatusOK, pageSearch, struct {
		pageData
		Query   string
		Raw     template.HTML
		Secured template.HTML
	}{
		pageData: s.page("Reflected XSS"),
		Query:    query,
		Raw:      template.HTML(query),
		Secured:  template.HTML(s.securerFor(r).Secure(query, contextText, mode)),
	})
}

// handleComments is the stored scenario
func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.ListComments(r.Context())
	if err != nil {
		slog.Error("Failed to list comments", "error", err)
		s.writeError(w, http.StatusInternalServerError, "server_error", "failed to load comments")
		return
	}

	securer := s.securerFor(r)
	mode := s.mode()
	items := make([]renderedItem, 0, len(comments))
	for _, c := range comments {
		items = append(items, s.renderItem(securer, mode, c.ID, c.Text))
	}

	s.render(w, http.StatusOK, pageComments, struct {
		pageData
		Items []renderedItem
	}{
		pageData: s.page("Stored XSS"),
		Items:    items,
	})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	text, ok := s.formValue(w, r, "text")
	if !ok {
		return
	}
	if text != "" {
		if _, err := s.store.AddComment(r.Context(), text); err != nil {
			slog.Error("Failed to store comment", "error", err)
			s.writeError(w, http.StatusInternalServerError, "server_error", "failed to store comment")
			return
		}
	}
	http.Redirect(w, r, "/comments", http.StatusSeeOther)
}

// handleContact is the blind scenario entry point. Nothing submitted here
// is shown back to the sender.
func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	s.renderContact(w, false)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	message, ok := s.formValue(w, r, "message")
	if !ok {
		return
	}
	if message != "" {
		if _, err := s.store.AddMessage(r.Context(), message); err != nil {
			slog.Error("Failed to store message", "error", err)
			s.writeError(w, http.StatusInternalServerError, "server_error", "failed to store message")
			return
		}
	}
	s.renderContact(w, true)
}

func (s *Server) renderContact(w http.ResponseWriter, sent bool) {
	s.render(w, http.StatusOK, pageContact, struct {
		pageData
		Sent bool
	}{
		pageData: s.page("Contact"),
		Sent:     sent,
	})
}

// handleAdminMessages is where blind payloads fire
func (s *Server) handleAdminMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.ListMessages(r.Context())
	if err != nil {
		slog.Error("Failed to list messages", "error", err)
		s.writeError(w, http.StatusInternalServerError, "server_error", "failed to load messages")
		return
	}
	s.recordAdminView(r, domain.AdminPanelMessages, len(messages))

	securer := s.securerFor(r)
	mode := s.mode()
	items := make([]renderedItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, s.renderItem(securer, mode, m.ID, m.Text))
	}

	s.render(w, http.StatusOK, pageAdminMessages, struct {
		pageData
		Items []renderedItem
	}{
		pageData: s.page("Admin messages"),
		Items:    items,
	})
}

func (s *Server) handleAdminCookies(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListStolenCookies(r.Context())
	if err != nil {
		slog.Error("Failed to list collected cookies", "error", err)
		s.writeError(w, http.StatusInternalServerError, "server_error", "failed to load collected cookies")
		return
	}
	s.recordAdminView(r, domain.AdminPanelCookies, len(entries))

	s.render(w, http.StatusOK, pageAdminCookies, struct {
		pageData
		Entries []domain.StolenCookie
	}{
		pageData: s.page("Collected cookies"),
		Entries:  entries,
	})
}

func (s *Server) renderItem(securer *policy.Securer, mode policy.Mode, id int64, text string) renderedItem {
	return renderedItem{
		ID:      id,
		Raw:     template.HTML(text),
		Secured: template.HTML(securer.Secure(text, contextHTML, mode)),
	}
}

// recordAdminView logs the panel view. A failure is logged and the page
// is still served.
func (s *Server) recordAdminView(r *http.Request, panel domain.AdminPanel, count int) {
	s.metrics.RecordAdminView(string(panel))
	view := domain.AdminView{Timestamp: s.now(), Panel: panel, MessageCount: count}
	if err := s.store.RecordAdminView(r.Context(), view); err != nil {
		slog.Warn("Failed to record admin view", "panel", panel, "error", err)
	}
}

// formValue reads one field of a size-limited form body. On failure the
// error response has already been written.
func (s *Server) formValue(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody())
	if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
			return "", false
		}
		s.writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid form body")
		return "", false
	}
	return r.PostForm.Get(key), true
}
