package http

import (
	"log/slog"
	"net/http"

	"xsslab/internal/audit"
	"xsslab/internal/crypto"
)

const adminRealm = `Basic realm="xsslab admin", charset="UTF-8"`

// withAdminAuth guards the admin panels with HTTP basic auth when an
// admin password hash is configured. Without one the panels stay open so
// the blind scenario works out of the box.
func (s *Server) withAdminAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := s.config.Security.AdminPasswordHash
		if hash == "" {
			handler(w, r)
			return
		}

		user, password, ok := r.BasicAuth()
		if !ok || !crypto.CheckCredentials(s.config.Security.AdminUser, hash, user, password) {
			ip, _ := audit.ExtractRequestInfo(r)
			slog.Warn("Admin authentication failed", "path", r.URL.Path, "ip", ip, "provided", ok)
			w.Header().Set("WWW-Authenticate", adminRealm)
			s.writeError(w, http.StatusUnauthorized, "authentication_error", "admin credentials required")
			return
		}

		handler(w, r)
	}
}
