package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/models"
	"github.com/wolfeidau/eventdesk/internal/session"
	"github.com/wolfeidau/eventdesk/internal/telemetry"
)

// ContextCookie names the cookie carrying the opaque browser context id.
const ContextCookie = "eventdesk_ctx"

const (
	defaultContextIdleTTL = 2 * time.Hour
	defaultMaxContexts    = 10000
)

type clientContextKey struct{}

// ClientFactory creates the session client for a new browser context.
type ClientFactory func() (session.Client, error)

// ContextsConfig configures the browser context registry.
type ContextsConfig struct {
	// IdleTTL is how long an unused browser context is kept.
	IdleTTL time.Duration
	// SecureCookie marks the context cookie Secure.
	SecureCookie bool
	// MaxContexts caps the registry; the least recently seen context is
	// evicted to make room.
	MaxContexts int
}

type browserContext struct {
	client   session.Client
	lastSeen time.Time
}

// Contexts maps browser context cookies to session clients, one session per
// browser context. A context is registered only when sign-in or sign-up
// establishes a session; other requests get a throwaway client.
type Contexts struct {
	newClient ClientFactory
	cfg       ContextsConfig
	now       func() time.Time

	mu      sync.Mutex
	entries map[uuid.UUID]*browserContext
}

// NewContexts creates an empty registry.
func NewContexts(factory ClientFactory, cfg ContextsConfig) *Contexts {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultContextIdleTTL
	}
	if cfg.MaxContexts <= 0 {
		cfg.MaxContexts = defaultMaxContexts
	}
	return &Contexts{
		newClient: factory,
		cfg:       cfg,
		now:       time.Now,
		entries:   make(map[uuid.UUID]*browserContext),
	}
}

// Middleware attaches the session client of the request's browser context.
// Requests with no known context cookie get an unregistered client.
func (c *Contexts) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, client := c.lookup(r)
			if client == nil {
				var err error
				if client, err = c.newClient(); err != nil {
					zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to create session client")
					http.Error(w, "failed to create browser context", http.StatusInternalServerError)
					return
				}
			}

			bc := &browserClient{Client: client, contexts: c, w: w, id: id}
			ctx := context.WithValue(r.Context(), clientContextKey{}, session.Client(bc))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// lookup returns the registered context named by the request cookie.
func (c *Contexts) lookup(r *http.Request) (uuid.UUID, session.Client) {
	cookie, err := r.Cookie(ContextCookie)
	if err != nil {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bc, ok := c.entries[id]
	if !ok {
		return uuid.Nil, nil
	}
	bc.lastSeen = c.now()
	return id, bc.client
}

func (c *Contexts) register(ctx context.Context, client session.Client) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.cfg.MaxContexts {
		c.evictOldest(ctx)
	}
	c.entries[id] = &browserContext{client: client, lastSeen: c.now()}
	telemetry.GetMetrics().BrowserContexts.Add(ctx, 1)
	return id, nil
}

func (c *Contexts) evictOldest(ctx context.Context) {
	var oldestID uuid.UUID
	var oldest time.Time
	for id, bc := range c.entries {
		if oldestID == uuid.Nil || bc.lastSeen.Before(oldest) {
			oldestID, oldest = id, bc.lastSeen
		}
	}
	if oldestID != uuid.Nil {
		delete(c.entries, oldestID)
		telemetry.GetMetrics().BrowserContexts.Add(ctx, -1)
	}
}

func (c *Contexts) drop(ctx context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; ok {
		delete(c.entries, id)
		telemetry.GetMetrics().BrowserContexts.Add(ctx, -1)
	}
}

// Sweep drops contexts idle for longer than IdleTTL and returns how many
// were removed. Their provider sessions are left to expire.
func (c *Contexts) Sweep(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.cfg.IdleTTL)
	removed := 0
	for id, bc := range c.entries {
		if bc.lastSeen.Before(cutoff) {
			delete(c.entries, id)
			removed++
		}
	}
	if removed > 0 {
		telemetry.GetMetrics().BrowserContexts.Add(ctx, -int64(removed))
	}
	return removed
}

// Run sweeps idle contexts until ctx is done.
func (c *Contexts) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(ctx); n > 0 {
				log.Debug().Int("removed", n).Msg("swept idle browser contexts")
			}
		}
	}
}

// Len returns the number of live browser contexts.
func (c *Contexts) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// browserClient is the session client handed to handlers for one request. It
// registers its context, and sets the cookie, when a session is established,
// and forgets the context on sign-out.
type browserClient struct {
	session.Client
	contexts *Contexts
	w        http.ResponseWriter
	id       uuid.UUID
}

func (b *browserClient) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	s, err := b.Client.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s, b.establish(ctx)
}

func (b *browserClient) SignUp(ctx context.Context, email, password, confirmPassword string) (*models.Session, error) {
	s, err := b.Client.SignUp(ctx, email, password, confirmPassword)
	if err != nil {
		return nil, err
	}
	return s, b.establish(ctx)
}

func (b *browserClient) SignOut(ctx context.Context) error {
	err := b.Client.SignOut(ctx)
	if b.id != uuid.Nil {
		b.contexts.drop(ctx, b.id)
		b.id = uuid.Nil
	}
	return err
}

func (b *browserClient) establish(ctx context.Context) error {
	if b.id != uuid.Nil {
		return nil
	}

	id, err := b.contexts.register(ctx, b.Client)
	if err != nil {
		return apperr.Remote("failed to create browser context", err)
	}
	b.id = id

	http.SetCookie(b.w, &http.Cookie{
		Name:     ContextCookie,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   b.contexts.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClientFromContext returns the session client attached by Contexts.Middleware.
func ClientFromContext(ctx context.Context) (session.Client, bool) {
	client, ok := ctx.Value(clientContextKey{}).(session.Client)
	return client, ok
}
