package web

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/models"
)

// APIProfile returns the caller's profile as JSON.
func (h *Handler) APIProfile(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)
	if user == nil {
		writeJSONError(w, r, apperr.NotAuthenticated(""))
		return
	}

	profile, err := h.dataAccess(r).FetchProfile(r.Context(), user.ID)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, profile)
}

// APIEvents returns the caller's events as JSON.
func (h *Handler) APIEvents(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)
	if user == nil {
		writeJSONError(w, r, apperr.NotAuthenticated(""))
		return
	}

	events, err := h.dataAccess(r).FetchEvents(r.Context(), user.ID)
	if err != nil {
		writeJSONError(w, r, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, r, http.StatusOK, events)
}

// APIFeatures returns every feature flag.
func (h *Handler) APIFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.flags.All())
}

// writeJSONError writes err in its {message} shape.
func writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, r, statusFor(err), apperr.Normalize(err))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}
