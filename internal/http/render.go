package http

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names
const (
	pageIndex         = "index"
	pageSearch        = "search"
	pageComments      = "comments"
	pageContact       = "contact"
	pageAdminMessages = "admin_messages"
	pageAdminCookies  = "admin_cookies"
)

// parsePages builds one template set per page, each combined with the
// shared layout.
func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{
		pageIndex, pageSearch, pageComments, pageContact, pageAdminMessages, pageAdminCookies,
	} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// staticHandler serves the embedded stylesheet
func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

// pageData is shared by every page
type pageData struct {
	Title string
	Mode  string
}

// renderedItem pairs the raw and secured form of a stored record. Both
// are final markup: Raw is deliberately unescaped, Secured is whatever
// the securer returned for the active mode.
type renderedItem struct {
	ID      int64
	Raw     template.HTML
	Secured template.HTML
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := s.pages[page]
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "server_error", "unknown page")
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("Failed to render page", "page", page, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
