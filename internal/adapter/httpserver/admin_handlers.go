package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// AdminAuth guards the admin surface with HTTP basic auth. The expected
// password is stored as a bcrypt hash so the environment never carries
// the plaintext.
func (s *Server) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.Cfg.AdminUsername)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(s.Cfg.AdminPasswordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: apiError{
				Code:    "UNAUTHORIZED",
				Message: "invalid credentials",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ReconnectBotHandler forces one bot through its reconnect cycle.
func (s *Server) ReconnectBotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
		var req struct {
			Username string `json:"username" validate:"required,min=1,max=64"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrBadDescriptor), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: username required", domain.ErrBadDescriptor), nil)
			return
		}
		s.Fleet.ReconnectBot(req.Username)
		LoggerFrom(r).Info("admin reconnect requested", "username", req.Username)
		writeJSON(w, http.StatusAccepted, map[string]any{"reconnecting": req.Username})
	}
}

// ReconnectAllHandler forces every bot through its reconnect cycle.
func (s *Server) ReconnectAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Fleet.ReconnectAll()
		LoggerFrom(r).Info("admin reconnect-all requested")
		writeJSON(w, http.StatusAccepted, map[string]any{"reconnecting": "all"})
	}
}
