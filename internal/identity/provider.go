// Package identity talks to the external identity and session provider.
package identity

import (
	"context"

	"github.com/wolfeidau/eventdesk/internal/models"
)

// Credentials are the email and password pair sent to the provider.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Grant is the result of a successful sign-in, sign-up or refresh.
// Session is nil when the provider created the user but is waiting on email
// confirmation before issuing tokens.
type Grant struct {
	User    models.User
	Session *models.Session
}

// Settings are the public provider settings the views care about.
type Settings struct {
	DisableSignup     bool            `json:"disable_signup"`
	MailerAutoconfirm bool            `json:"mailer_autoconfirm"`
	External          map[string]bool `json:"external,omitempty"`
}

// Provider is the capability interface over the identity provider. Every error
// returned is an *apperr.Error: credential rejections are apperr.KindAuth, an
// unusable access token is apperr.KindNotAuthenticated, the rest are
// apperr.KindRemote.
type Provider interface {
	SignInWithPassword(ctx context.Context, creds Credentials) (*Grant, error)
	SignUp(ctx context.Context, creds Credentials) (*Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
	GetUser(ctx context.Context, accessToken string) (*models.User, error)
	SignOut(ctx context.Context, accessToken string) error
	Settings(ctx context.Context) (*Settings, error)
	Health(ctx context.Context) error
}
