package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/isearch-project/musebag/internal/profile"
	"github.com/isearch-project/musebag/internal/session"
)

// attrUnavailableMsg matches the message the front-end expects for an
// unknown profile attribute.
const attrUnavailableMsg = "The requested user profile attribute is not available!"

// errAborted cancels a session update without committing it.
var errAborted = errors.New("update aborted")

// profileHandler serves profile attribute reads/writes and the search
// history flush.
type profileHandler struct {
	sessions *session.Manager
	profiles *profile.Client
	logger   *slog.Logger
}

// getAttribute returns a single profile attribute as {attrib: value}.
func (h *profileHandler) getAttribute(w http.ResponseWriter, r *http.Request) {
	attrib := r.PathValue("attrib")
	token := h.sessions.EnsureToken(w, r)

	p, err := h.sessions.Profile(r.Context(), token)
	if err != nil {
		h.logger.Error("loading session profile", "error", err)
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	value, ok := p.Attribute(attrib)
	if !ok {
		writeError(w, http.StatusNotFound, attrUnavailableMsg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{attrib: value})
}

type setAttributeRequest struct {
	Data string `json:"data"`
}

// setAttribute updates a writable profile attribute. Settings are merged
// key-by-key from the posted JSON; Email is replaced for authenticated
// users. Authenticated changes are pushed to the profile service; guests
// keep changes session-only and get {"info":"guest"} back.
func (h *profileHandler) setAttribute(w http.ResponseWriter, r *http.Request) {
	attrib := r.PathValue("attrib")

	var req setAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Data == "" {
		writeError(w, http.StatusBadRequest, "unknown parameter to set")
		return
	}

	token := h.sessions.EnsureToken(w, r)

	var outcome string
	p, err := h.sessions.Update(r.Context(), token, func(p *session.Profile) error {
		switch attrib {
		case "Settings":
			changed, mergeErr := p.MergeSettings(req.Data)
			if mergeErr != nil {
				outcome = "malformed"
				return errAborted
			}
			if !changed {
				outcome = "nochange"
				return errAborted
			}
		case "Email":
			if p.IsGuest() || p.Email == req.Data {
				outcome = "nochange"
				return errAborted
			}
			p.SetAttribute(attrib, req.Data)
		default:
			outcome = "unknown"
			return errAborted
		}
		return nil
	})
	if err != nil {
		switch outcome {
		case "malformed":
			writeError(w, http.StatusBadRequest, "malformed")
		case "nochange":
			// An answer the front-end string-matches on, not a fault.
			writeJSON(w, http.StatusOK, errorEnvelope{Error: "nochange"})
		case "unknown":
			writeError(w, http.StatusBadRequest, "unknown parameter to set")
		default:
			h.logger.Error("updating session profile", "error", err)
			writeError(w, http.StatusInternalServerError, "session unavailable")
		}
		return
	}

	if p.IsGuest() {
		// Guest changes live in the session only.
		writeJSON(w, http.StatusOK, map[string]string{"info": "guest"})
		return
	}

	value, _ := p.Attribute(attrib)
	if err := h.profiles.StoreProfileData(r.Context(), p.ID, value); err != nil {
		if errors.Is(err, profile.ErrRemote) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.logger.Error("storing profile data", "error", err)
		writeError(w, http.StatusBadGateway, "profile service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type historyRequest struct {
	Items []session.Item `json:"items"`
}

// updateHistory records posted result items on the session (newest first)
// and, once user id, query, and items are all present, flushes the entry
// to the profile service. A successful flush clears the query lifecycle.
func (h *profileHandler) updateHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token := h.sessions.EnsureToken(w, r)

	p, err := h.sessions.Update(r.Context(), token, func(p *session.Profile) error {
		if len(req.Items) > 0 {
			p.PrependItems(req.Items)
		}
		return nil
	})
	if err != nil {
		h.logger.Error("updating session profile", "error", err)
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	if !isNumericID(p.ID) || p.Query == nil || len(p.Items) == 0 {
		writeError(w, http.StatusBadRequest, "History data cannot be saved because of insufficient data.")
		return
	}

	queryJSON, err := json.Marshal(p.Query)
	if err != nil {
		h.logger.Error("encoding history query", "error", err)
		writeError(w, http.StatusInternalServerError, "history encoding failed")
		return
	}
	itemsJSON, err := json.Marshal(p.Items)
	if err != nil {
		h.logger.Error("encoding history items", "error", err)
		writeError(w, http.StatusInternalServerError, "history encoding failed")
		return
	}

	if err := h.profiles.UpdateSearchHistory(r.Context(), p.ID, string(queryJSON), string(itemsJSON)); err != nil {
		if errors.Is(err, profile.ErrRemote) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.logger.Error("updating search history", "error", err)
		writeError(w, http.StatusBadGateway, "profile service unavailable")
		return
	}

	// The finished query is archived, start a fresh lifecycle.
	if _, err := h.sessions.Update(r.Context(), token, func(p *session.Profile) error {
		p.ResetQuery()
		return nil
	}); err != nil {
		h.logger.Error("resetting query lifecycle", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"success": "History entry saved."})
}

// isNumericID reports whether the profile ID belongs to an authenticated
// user (the profile service issues numeric ids; guests carry "guest").
func isNumericID(id string) bool {
	_, err := strconv.Atoi(id)
	return err == nil
}
