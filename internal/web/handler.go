// Package web serves the server-rendered pages and the JSON API. Each browser
// gets its own session client, so every page acts as exactly one user.
package web

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/data"
	"github.com/wolfeidau/eventdesk/internal/features"
	"github.com/wolfeidau/eventdesk/internal/identity"
	"github.com/wolfeidau/eventdesk/internal/models"
	"github.com/wolfeidau/eventdesk/internal/session"
)

// AccessFunc returns the data access for one request, acting through the
// browser context's session client.
type AccessFunc func(ctx context.Context, client session.Client) data.Access

// SharedAccess uses one data access for every browser context. Suitable for
// backends that do not authenticate as the user.
func SharedAccess(access data.Access) AccessFunc {
	return func(context.Context, session.Client) data.Access {
		return access
	}
}

// Config holds the dependencies of the views.
type Config struct {
	Provider identity.Provider
	Access   AccessFunc
	Flags    *features.Flags
}

func (c Config) validate() error {
	if c.Provider == nil {
		return errors.New("identity provider is required")
	}
	if c.Access == nil {
		return errors.New("data access is required")
	}
	return nil
}

// Handler serves server-rendered HTML pages.
type Handler struct {
	provider  identity.Provider
	access    AccessFunc
	flags     *features.Flags
	templates map[string]*template.Template
}

// NewHandler parses the page templates and returns a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Flags == nil {
		cfg.Flags = features.New(features.Config{})
	}

	templates, err := parseTemplates(templateFuncs(cfg.Flags, bluemonday.UGCPolicy()))
	if err != nil {
		return nil, err
	}

	return &Handler{
		provider:  cfg.Provider,
		access:    cfg.Access,
		flags:     cfg.Flags,
		templates: templates,
	}, nil
}

// page is the data handed to every template.
type page struct {
	Title  string
	User   *models.User
	Notice string
	Error  string

	// auth forms
	Email          string
	SignupDisabled bool

	// profile
	Username  string
	FullName  string
	AvatarURL string
	UpdatedAt time.Time

	// events
	Events []models.Event
	Form   eventForm

	// testing
	Flags     []features.Flag
	Status    string
	Connected bool
}

func (h *Handler) client(r *http.Request) session.Client {
	client, ok := ClientFromContext(r.Context())
	if !ok {
		// only reachable when the router is assembled without Contexts.Middleware
		panic("web: request has no browser context")
	}
	return client
}

// currentUser returns the signed-in user of the request's browser context.
func (h *Handler) currentUser(r *http.Request) *models.User {
	return h.client(r).CurrentUser(r.Context())
}

func (h *Handler) dataAccess(r *http.Request) data.Access {
	return h.access(r.Context(), h.client(r))
}

// render executes a template into a buffer, then writes it with status.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, p *page) {
	tmpl, ok := h.templates[name]
	if !ok {
		zerolog.Ctx(r.Context()).Error().Str("template", name).Msg("template not found")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, p); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("template render error")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError renders a page with the normalized message of err.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, name string, p *page, err error) {
	p.Error = apperr.Normalize(err).Message
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("request failed")
	} else {
		zerolog.Ctx(r.Context()).Debug().Err(err).Str("template", name).Msg("request rejected")
	}
	h.render(w, r, status, name, p)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindNotAuthenticated, apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// Home links to the auth pages.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "home.html", &page{Title: "Home", User: h.currentUser(r)})
}
