// Package memory is an in-process identity provider with the same behaviour as
// the hosted one. This implementation is for development and testing only -
// users and sessions are lost on restart.
package memory

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/identity"
	"github.com/wolfeidau/eventdesk/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var _ identity.Provider = (*Provider)(nil)

// Config configures the provider.
type Config struct {
	// SigningSecret signs access tokens with HS256. Must be at least 32 bytes.
	SigningSecret []byte
	// TokenTTL is the access token lifetime. Default: 1 hour.
	TokenTTL time.Duration
	// RequireConfirmation withholds sessions on sign-up until Confirm is called.
	RequireConfirmation bool
	// DisableSignup rejects all sign-ups.
	DisableSignup bool
	// BcryptCost overrides bcrypt.DefaultCost.
	BcryptCost int
}

type user struct {
	id        uuid.UUID
	email     string
	hash      []byte
	confirmed bool
}

// sessionClaims are the access token claims.
type sessionClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Provider implements identity.Provider in memory.
type Provider struct {
	cfg Config

	mu       sync.RWMutex
	users    map[string]*user        // email -> user
	sessions map[uuid.UUID]uuid.UUID // session id -> user id
	refresh  map[string]uuid.UUID    // refresh token -> session id

	calls atomic.Int64
	now   func() time.Time
}

// New creates an empty provider.
func New(cfg Config) (*Provider, error) {
	if len(cfg.SigningSecret) < 32 {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	return &Provider{
		cfg:      cfg,
		users:    make(map[string]*user),
		sessions: make(map[uuid.UUID]uuid.UUID),
		refresh:  make(map[string]uuid.UUID),
		now:      time.Now,
	}, nil
}

// Calls returns how many provider operations have been invoked.
func (p *Provider) Calls() int64 {
	return p.calls.Load()
}

// SignInWithPassword verifies the password and opens a session.
func (p *Provider) SignInWithPassword(ctx context.Context, creds identity.Credentials) (*identity.Grant, error) {
	p.calls.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[normalizeEmail(creds.Email)]
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(creds.Password)) != nil {
		return nil, apperr.Auth("Invalid login credentials", nil)
	}
	if !u.confirmed {
		return nil, apperr.Auth("Email not confirmed", nil)
	}

	return p.openSession(u)
}

// SignUp registers a user. Sessions are issued immediately unless confirmation is required.
func (p *Provider) SignUp(ctx context.Context, creds identity.Credentials) (*identity.Grant, error) {
	p.calls.Add(1)

	if p.cfg.DisableSignup {
		return nil, apperr.Auth("Signups not allowed for this instance", nil)
	}

	email := normalizeEmail(creds.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Auth("Unable to validate email address: invalid format", nil)
	}
	if len(creds.Password) < minPasswordLength {
		return nil, apperr.Auth("Password should be at least 6 characters.", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), p.cfg.BcryptCost)
	if err != nil {
		return nil, apperr.Remote("failed to hash password", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.users[email]; exists {
		return nil, apperr.Auth("User already registered", nil)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Remote("failed to generate user id", err)
	}

	u := &user{id: id, email: email, hash: hash, confirmed: !p.cfg.RequireConfirmation}
	p.users[email] = u

	if !u.confirmed {
		return &identity.Grant{User: models.User{ID: u.id, Email: u.email}}, nil
	}

	return p.openSession(u)
}

// Confirm marks a pending user as confirmed.
func (p *Provider) Confirm(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[normalizeEmail(email)]
	if !ok {
		return false
	}
	u.confirmed = true
	return true
}

// Refresh rotates a refresh token. Each refresh token can be used once.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*identity.Grant, error) {
	p.calls.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	sessionID, ok := p.refresh[refreshToken]
	if !ok {
		return nil, apperr.Auth("Invalid Refresh Token: Refresh Token Not Found", nil)
	}
	delete(p.refresh, refreshToken)

	userID, ok := p.sessions[sessionID]
	if !ok {
		return nil, apperr.Auth("Invalid Refresh Token: Session Expired", nil)
	}

	u := p.userByID(userID)
	if u == nil {
		return nil, apperr.Auth("User not found", nil)
	}

	return p.issue(u, sessionID)
}

// GetUser validates the access token and returns its user.
func (p *Provider) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	p.calls.Add(1)

	claims, err := p.parse(accessToken)
	if err != nil {
		return nil, apperr.NotAuthenticated("invalid JWT: " + err.Error())
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	sessionID, _ := uuid.Parse(claims.SessionID)
	if _, ok := p.sessions[sessionID]; !ok {
		return nil, apperr.NotAuthenticated("Session not found")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.NotAuthenticated("invalid JWT: bad subject")
	}

	u := p.userByID(userID)
	if u == nil {
		return nil, apperr.NotAuthenticated("User not found")
	}

	return &models.User{ID: u.id, Email: u.email}, nil
}

// SignOut ends the session behind the token along with its refresh tokens.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	p.calls.Add(1)

	claims, err := p.parse(accessToken)
	if err != nil {
		// nothing to revoke
		return nil
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.sessions, sessionID)
	for tok, sid := range p.refresh {
		if sid == sessionID {
			delete(p.refresh, tok)
		}
	}
	return nil
}

// Settings reports the provider configuration.
func (p *Provider) Settings(ctx context.Context) (*identity.Settings, error) {
	return &identity.Settings{
		DisableSignup:     p.cfg.DisableSignup,
		MailerAutoconfirm: !p.cfg.RequireConfirmation,
		External:          map[string]bool{"email": true},
	}, nil
}

// Health always succeeds.
func (p *Provider) Health(ctx context.Context) error {
	return nil
}

// openSession must be called with the write lock held.
func (p *Provider) openSession(u *user) (*identity.Grant, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Remote("failed to generate session id", err)
	}
	p.sessions[sessionID] = u.id
	return p.issue(u, sessionID)
}

// issue must be called with the write lock held.
func (p *Provider) issue(u *user, sessionID uuid.UUID) (*identity.Grant, error) {
	now := p.now()
	expiresAt := now.Add(p.cfg.TokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email:     u.email,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.id.String(),
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(p.cfg.SigningSecret)
	if err != nil {
		return nil, apperr.Remote("failed to sign access token", err)
	}

	refreshToken := rand.Text()
	p.refresh[refreshToken] = sessionID

	return &identity.Grant{
		User: models.User{ID: u.id, Email: u.email},
		Session: &models.Session{
			UserID:       u.id,
			Email:        u.email,
			AccessToken:  signed,
			RefreshToken: refreshToken,
			ExpiresAt:    time.Unix(expiresAt.Unix(), 0),
		},
	}, nil
}

func (p *Provider) parse(accessToken string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		return p.cfg.SigningSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// userByID must be called with the lock held.
func (p *Provider) userByID(id uuid.UUID) *user {
	for _, u := range p.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
