package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/data"
)

// eventForm holds the raw values of the event form so they can be redisplayed.
type eventForm struct {
	Title       string
	Description string
	StartDate   string
	EndDate     string
}

// toNewEvent parses the datetime-local values as UTC. Blank dates stay zero
// and are rejected by the data layer.
func (f eventForm) toNewEvent() (data.NewEvent, error) {
	start, err := parseDateTimeLocal(f.StartDate)
	if err != nil {
		return data.NewEvent{}, apperr.Validation("Start date is not a valid date and time")
	}
	end, err := parseDateTimeLocal(f.EndDate)
	if err != nil {
		return data.NewEvent{}, apperr.Validation("End date is not a valid date and time")
	}
	return data.NewEvent{
		Title:       f.Title,
		Description: f.Description,
		StartDate:   start,
		EndDate:     end,
	}, nil
}

func parseDateTimeLocal(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	// browsers may include seconds
	if len(value) > len(DateTimeLocalLayout) {
		return time.ParseInLocation("2006-01-02T15:04:05", value, time.UTC)
	}
	return time.ParseInLocation(DateTimeLocalLayout, value, time.UTC)
}

// Events lists the caller's events by start date.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)
	p := &page{Title: "Events", User: user}
	if user == nil {
		h.renderError(w, r, "events.html", p, apperr.NotAuthenticated(""))
		return
	}

	events, err := h.dataAccess(r).FetchEvents(r.Context(), user.ID)
	if err != nil {
		h.renderError(w, r, "events.html", p, err)
		return
	}

	p.Events = events
	h.render(w, r, http.StatusOK, "events.html", p)
}

// NewEventForm renders the event creation form.
func (h *Handler) NewEventForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "event_new.html", &page{Title: "Create Event", User: h.currentUser(r)})
}

// CreateEvent inserts an event owned by the caller and resets the form.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form := eventForm{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		StartDate:   r.PostFormValue("start_date"),
		EndDate:     r.PostFormValue("end_date"),
	}

	user := h.currentUser(r)
	p := &page{Title: "Create Event", User: user, Form: form}
	if user == nil {
		h.renderError(w, r, "event_new.html", p, apperr.NotAuthenticated(""))
		return
	}

	in, err := form.toNewEvent()
	if err != nil {
		h.renderError(w, r, "event_new.html", p, err)
		return
	}

	if _, err := h.dataAccess(r).CreateEvent(r.Context(), user.ID, in); err != nil {
		h.renderError(w, r, "event_new.html", p, err)
		return
	}

	p.Form = eventForm{}
	p.Notice = "Event created successfully"
	h.render(w, r, http.StatusCreated, "event_new.html", p)
}
