package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/isearch-project/musebag/internal/profile"
	"github.com/isearch-project/musebag/internal/session"
)

// authHandler serves login and logout.
type authHandler struct {
	sessions *session.Manager
	profiles *profile.Client
	logger   *slog.Logger
}

type loginRequest struct {
	Email string `json:"email"`
	Pw    string `json:"pw"`
}

// login validates credentials against the profile service and binds the
// returned user to the visitor's session. The raw user object is echoed
// back to the client.
func (h *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Pw == "" {
		writeError(w, http.StatusBadRequest, "email and pw are required")
		return
	}

	user, err := h.profiles.ValidateUser(r.Context(), req.Email, req.Pw)
	if err != nil {
		if errors.Is(err, profile.ErrRemote) {
			h.logger.Info("login rejected", "email", req.Email)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error("validating user", "error", err)
		writeError(w, http.StatusBadGateway, "authentication service unavailable")
		return
	}

	token := h.sessions.EnsureToken(w, r)
	if _, err := h.sessions.Update(r.Context(), token, func(p *session.Profile) error {
		p.ID = user.ID.String()
		p.Email = user.Email
		if user.Settings != "" {
			p.Settings = user.Settings
		}
		return nil
	}); err != nil {
		h.logger.Error("binding user to session", "error", err)
		writeError(w, http.StatusInternalServerError, "session update failed")
		return
	}

	h.logger.Info("user logged in", "id", user.ID.String())
	writeJSON(w, http.StatusOK, user.Raw)
}

// logout destroys the visitor's session.
func (h *authHandler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessions.Token(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"msg": true})
		return
	}

	if err := h.sessions.Destroy(r.Context(), token, w); err != nil {
		h.logger.Error("destroying session", "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"msg": true})
}
