package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Session represents the authenticated identity token set held by a session client
// after sign-in or sign-up. Values are treated as immutable once published; a
// refresh produces a new Session rather than editing an existing one.
type Session struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired returns true if the access token has expired.
func (s *Session) IsExpired() bool {
	return s.ExpiresWithin(0)
}

// ExpiresWithin returns true if the access token expires within the given window.
// A zero ExpiresAt means the provider did not report an expiry and is never considered expired.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(d).After(s.ExpiresAt)
}

// User returns the identity carried by the session.
func (s *Session) User() *User {
	return &User{ID: s.UserID, Email: s.Email}
}

// Token converts the session into an oauth2 bearer token.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt,
	}
}
