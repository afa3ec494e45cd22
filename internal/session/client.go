// Package session holds the signed-in identity for one user agent and keeps
// its access token fresh.
package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/identity"
	"github.com/wolfeidau/eventdesk/internal/models"
	"github.com/wolfeidau/eventdesk/internal/telemetry"
	"golang.org/x/oauth2"
)

// DefaultRefreshLeeway is how long before expiry an access token is refreshed.
const DefaultRefreshLeeway = 30 * time.Second

// ErrConfirmationPending is wrapped by the AuthError returned from SignUp when
// the provider created the user but will not issue a session until the email
// address is confirmed.
var ErrConfirmationPending = errors.New("check your email to confirm your account")

// Client is the session capability consumed by views and the data layer.
type Client interface {
	// CurrentUser returns the signed-in user or nil. It never fails.
	CurrentUser(ctx context.Context) *models.User
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password, confirmPassword string) (*models.Session, error)
	// SignOut drops the local session before revoking it remotely.
	SignOut(ctx context.Context) error
	// Session returns a copy of the current session or nil.
	Session() *models.Session
	// TokenSource yields the current access token, refreshing it when due.
	TokenSource(ctx context.Context) oauth2.TokenSource
}

var _ Client = (*SessionClient)(nil)

// SessionClient implements Client over an identity.Provider. The session is
// a single immutable value swapped atomically.
type SessionClient struct {
	provider identity.Provider
	storage  Storage
	leeway   time.Duration
	metrics  *telemetry.Metrics

	current atomic.Pointer[models.Session]
}

// Option configures a SessionClient.
type Option func(*SessionClient)

// WithStorage persists the session through s. Default: MemoryStorage.
func WithStorage(s Storage) Option {
	return func(c *SessionClient) {
		c.storage = s
	}
}

// WithRefreshLeeway sets how early tokens are refreshed.
func WithRefreshLeeway(d time.Duration) Option {
	return func(c *SessionClient) {
		c.leeway = d
	}
}

// New creates a session client, restoring any session held by the storage.
func New(provider identity.Provider, opts ...Option) (*SessionClient, error) {
	c := &SessionClient{
		provider: provider,
		storage:  NewMemoryStorage(),
		leeway:   DefaultRefreshLeeway,
		metrics:  telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}

	s, err := c.storage.Load()
	if err != nil {
		return nil, err
	}
	if s != nil {
		c.current.Store(s)
		log.Debug().Str("email", s.Email).Time("expires_at", s.ExpiresAt).Msg("restored session")
	}

	return c, nil
}

func (c *SessionClient) CurrentUser(ctx context.Context) *models.User {
	s := c.current.Load()
	if s == nil {
		return nil
	}

	s, err := c.fresh(ctx, s)
	if err != nil {
		log.Debug().Err(err).Msg("no current user, refresh failed")
		return nil
	}

	u, err := c.provider.GetUser(ctx, s.AccessToken)
	if err != nil {
		log.Debug().Err(err).Msg("no current user, lookup failed")
		return nil
	}
	return u
}

func (c *SessionClient) SignIn(ctx context.Context, email, password string) (_ *models.Session, err error) {
	ctx, done := c.observe(ctx, "sign_in")
	defer func() { done(err) }()

	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	g, err := c.provider.SignInWithPassword(ctx, identity.Credentials{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return nil, apperr.From(err)
	}
	if g.Session == nil {
		return nil, apperr.Remote("identity provider returned no session", nil)
	}

	return c.establish(g.Session), nil
}

func (c *SessionClient) SignUp(ctx context.Context, email, password, confirmPassword string) (_ *models.Session, err error) {
	ctx, done := c.observe(ctx, "sign_up")
	defer func() { done(err) }()

	if password != confirmPassword {
		return nil, apperr.Validation("Passwords do not match")
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	g, err := c.provider.SignUp(ctx, identity.Credentials{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return nil, apperr.From(err)
	}
	if g.Session == nil {
		return nil, apperr.Auth("Check your email to confirm your account", ErrConfirmationPending)
	}

	return c.establish(g.Session), nil
}

func (c *SessionClient) SignOut(ctx context.Context) (err error) {
	ctx, done := c.observe(ctx, "sign_out")
	defer func() { done(err) }()

	s := c.current.Swap(nil)
	if serr := c.storage.Clear(); serr != nil {
		log.Warn().Err(serr).Msg("failed to clear stored session")
	}
	if s == nil {
		return nil
	}

	if err := c.provider.SignOut(ctx, s.AccessToken); err != nil {
		ae := apperr.From(err)
		return apperr.Remote(ae.Message, err)
	}
	return nil
}

func (c *SessionClient) Session() *models.Session {
	s := c.current.Load()
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

func (c *SessionClient) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, client: c}
}

// establish publishes a new session, replacing whatever was there.
func (c *SessionClient) establish(s *models.Session) *models.Session {
	next := withExpiry(s)
	c.current.Store(next)
	c.persist(next)

	clone := *next
	return &clone
}

// fresh returns s, or a refreshed replacement when s is within the leeway of expiring.
func (c *SessionClient) fresh(ctx context.Context, s *models.Session) (*models.Session, error) {
	if !s.ExpiresWithin(c.leeway) {
		return s, nil
	}
	return c.refresh(ctx, s)
}

func (c *SessionClient) refresh(ctx context.Context, s *models.Session) (_ *models.Session, err error) {
	ctx, done := c.observe(ctx, "refresh")
	defer func() { done(err) }()

	c.metrics.SessionRefreshTotal.Add(ctx, 1)

	g, err := c.provider.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if !errors.Is(err, apperr.ErrAuth) {
			return nil, apperr.From(err)
		}
		// another caller may have rotated the refresh token first
		if cur := c.current.Load(); cur != nil && cur != s {
			return cur, nil
		}
		if c.current.CompareAndSwap(s, nil) {
			if serr := c.storage.Clear(); serr != nil {
				log.Warn().Err(serr).Msg("failed to clear stored session")
			}
		}
		return nil, apperr.NotAuthenticated("Session expired, please sign in again")
	}
	if g.Session == nil {
		return nil, apperr.Remote("identity provider returned no session", nil)
	}

	next := withExpiry(g.Session)
	if !c.current.CompareAndSwap(s, next) {
		// a sign in, sign out or concurrent refresh won
		if cur := c.current.Load(); cur != nil {
			return cur, nil
		}
		return nil, apperr.NotAuthenticated("")
	}
	c.persist(next)

	log.Debug().Str("email", next.Email).Time("expires_at", next.ExpiresAt).Msg("refreshed session")
	return next, nil
}

func (c *SessionClient) persist(s *models.Session) {
	if err := c.storage.Save(s); err != nil {
		log.Warn().Err(err).Msg("failed to store session")
	}
}

func (c *SessionClient) observe(ctx context.Context, op string) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "session."+op)
	return ctx, func(err error) {
		kind := ""
		if err != nil {
			kind = apperr.KindOf(err).String()
		}
		c.metrics.RecordAuth(ctx, op, started, kind)
		telemetry.EndSpan(span, err)
	}
}

// withExpiry copies s, filling a missing expiry from the access token exp claim.
func withExpiry(s *models.Session) *models.Session {
	next := *s
	if !next.ExpiresAt.IsZero() {
		return &next
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(next.AccessToken, claims); err != nil {
		log.Debug().Err(err).Msg("access token is not a JWT, expiry unknown")
		return &next
	}
	if claims.ExpiresAt != nil {
		next.ExpiresAt = claims.ExpiresAt.Time
	}
	return &next
}

// tokenSource adapts a SessionClient to oauth2.TokenSource.
type tokenSource struct {
	ctx    context.Context
	client *SessionClient
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	s := ts.client.current.Load()
	if s == nil {
		return nil, apperr.NotAuthenticated("")
	}

	s, err := ts.client.fresh(ts.ctx, s)
	if err != nil {
		return nil, err
	}
	return s.Token(), nil
}
