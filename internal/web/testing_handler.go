package web

import (
	"net/http"

	"github.com/wolfeidau/eventdesk/internal/apperr"
)

// TestIndex links to the feature test pages.
func (h *Handler) TestIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "test.html", &page{
		Title: "Event Feature Testing",
		User:  h.currentUser(r),
		Flags: h.flags.All(),
	})
}

// TestConnection reports whether the identity provider is reachable.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	p := &page{Title: "Connection Test", User: h.currentUser(r)}

	if err := h.provider.Health(r.Context()); err != nil {
		p.Status = "Connection failed: " + apperr.Normalize(err).Message
	} else {
		p.Status = "Successfully connected"
		p.Connected = true
	}

	h.render(w, r, http.StatusOK, "connection.html", p)
}
