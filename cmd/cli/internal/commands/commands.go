package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/client"
	"github.com/wolfeidau/eventdesk/internal/data"
	"github.com/wolfeidau/eventdesk/internal/features"
	"github.com/wolfeidau/eventdesk/internal/identity"
	"github.com/wolfeidau/eventdesk/internal/logger"
	"github.com/wolfeidau/eventdesk/internal/models"
	"github.com/wolfeidau/eventdesk/internal/session"
	postgresstore "github.com/wolfeidau/eventdesk/internal/store/postgres"
	"github.com/wolfeidau/eventdesk/internal/store/rest"
)

type Globals struct {
	Debug   bool
	Version string

	ProviderURL string
	AnonKey     string
	Timeout     time.Duration
	SessionFile string
	Store       string
	PostgresURL string
}

// app holds what a command acts through: one session and the data access
// bound to it.
type app struct {
	session session.Client
	access  data.Access
	flags   *features.Flags
	out     io.Writer
	close   func()
}

// open builds the app from the global flags. The session is restored from,
// and persisted to, the session file.
func (g *Globals) open(ctx context.Context) (*app, error) {
	log := logger.Setup(g.Debug)

	cfg := client.Config{
		ProviderURL: g.ProviderURL,
		AnonKey:     g.AnonKey,
		Timeout:     g.Timeout,
		Debug:       g.Debug,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider configuration: %w", err)
	}

	storage, err := session.NewFileStorage(g.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}

	provider := identity.NewHTTPProvider(cfg, client.NewHTTPClient(cfg, log), nil)
	sc, err := session.New(provider, session.WithStorage(storage))
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	flags, err := loadFlags()
	if err != nil {
		return nil, err
	}

	a := &app{session: sc, flags: flags, out: stdout(), close: func() {}}

	switch g.Store {
	case "postgres":
		if g.PostgresURL == "" {
			return nil, errors.New("PostgreSQL connection string is required (--postgres-url or POSTGRES_CONNECTION_STRING)")
		}
		backend, err := postgresstore.New(ctx, postgresstore.Config{
			Pool: postgresstore.PoolConfig{ConnString: g.PostgresURL, MaxConns: 2},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.access = data.NewService(backend)
		a.close = backend.Close
	default:
		transport := client.NewTransport(cfg, nil, log)
		a.access = data.NewService(rest.New(cfg, transport, sc.TokenSource(ctx)))
	}

	return a, nil
}

func loadFlags() (*features.Flags, error) {
	flags, err := features.Load(os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature flags: %w", err)
	}
	return flags, nil
}

func stdout() io.Writer { return os.Stdout }

// requireUser returns the signed-in user.
func (a *app) requireUser(ctx context.Context) (*models.User, error) {
	u := a.session.CurrentUser(ctx)
	if u == nil {
		return nil, apperr.NotAuthenticated("not signed in, run `eventdesk signin` first")
	}
	return u, nil
}

// runner is implemented by every command body so tests can drive commands
// against an app built from in-memory backends.
type runner interface {
	run(ctx context.Context, a *app) error
}

func run(ctx context.Context, g *Globals, r runner) error {
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return r.run(ctx, a)
}
