package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/data"
	"github.com/wolfeidau/eventdesk/internal/session"
)

const signedInRedirect = "/events"

// SignUpForm renders the sign-up form, or a banner when the provider has
// sign-ups disabled.
func (h *Handler) SignUpForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signup.html", &page{
		Title:          "Sign Up",
		User:           h.currentUser(r),
		SignupDisabled: h.signupDisabled(r),
	})
}

// SignUp creates an account. A password mismatch is rejected before any
// provider call.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	p := &page{Title: "Sign Up", Email: email}

	_, err := h.client(r).SignUp(r.Context(), email, r.PostFormValue("password"), r.PostFormValue("confirm_password"))
	switch {
	case errors.Is(err, session.ErrConfirmationPending):
		p.Notice = apperr.Normalize(err).Message
		h.render(w, r, http.StatusOK, "signup.html", p)
	case err != nil:
		h.renderError(w, r, "signup.html", p, err)
	default:
		http.Redirect(w, r, signedInRedirect, http.StatusSeeOther)
	}
}

// SignInForm renders the sign-in form.
func (h *Handler) SignInForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "signin.html", &page{Title: "Sign In", User: h.currentUser(r)})
}

// SignIn signs the browser context in, showing the provider's message on failure.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	if _, err := h.client(r).SignIn(r.Context(), email, r.PostFormValue("password")); err != nil {
		h.renderError(w, r, "signin.html", &page{Title: "Sign In", Email: email}, err)
		return
	}

	http.Redirect(w, r, signedInRedirect, http.StatusSeeOther)
}

// SignOut clears the local session and always returns home, even when the
// provider could not revoke the session.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.client(r).SignOut(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("remote sign out failed, local session cleared")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Profile loads the caller's profile into the form.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)
	p := &page{Title: "Profile", User: user}
	if user == nil {
		h.renderError(w, r, "profile.html", p, apperr.NotAuthenticated("No user logged in"))
		return
	}

	profile, err := h.dataAccess(r).FetchProfile(r.Context(), user.ID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		// first visit, empty form
	case err != nil:
		h.renderError(w, r, "profile.html", p, err)
		return
	default:
		p.Username = profile.UsernameOrEmpty()
		p.FullName = profile.FullNameOrEmpty()
		p.AvatarURL = profile.AvatarURLOrEmpty()
		p.UpdatedAt = profile.UpdatedAt
	}

	h.render(w, r, http.StatusOK, "profile.html", p)
}

// SaveProfile upserts the caller's profile.
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	update := data.ProfileUpdate{
		Username:  r.PostFormValue("username"),
		FullName:  r.PostFormValue("full_name"),
		AvatarURL: r.PostFormValue("avatar_url"),
	}

	user := h.currentUser(r)
	p := &page{
		Title:     "Profile",
		User:      user,
		Username:  update.Username,
		FullName:  update.FullName,
		AvatarURL: update.AvatarURL,
	}
	if user == nil {
		h.renderError(w, r, "profile.html", p, apperr.NotAuthenticated("No user logged in"))
		return
	}

	saved, err := h.dataAccess(r).SaveProfile(r.Context(), user.ID, update)
	if err != nil {
		h.renderError(w, r, "profile.html", p, err)
		return
	}

	p.Username = saved.UsernameOrEmpty()
	p.FullName = saved.FullNameOrEmpty()
	p.AvatarURL = saved.AvatarURLOrEmpty()
	p.UpdatedAt = saved.UpdatedAt
	p.Notice = "Profile updated"
	h.render(w, r, http.StatusOK, "profile.html", p)
}

func (h *Handler) signupDisabled(r *http.Request) bool {
	settings, err := h.provider.Settings(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to load identity provider settings")
		return false
	}
	return settings.DisableSignup
}
