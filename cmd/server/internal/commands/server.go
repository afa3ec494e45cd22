package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/client"
	"github.com/wolfeidau/eventdesk/internal/data"
	"github.com/wolfeidau/eventdesk/internal/features"
	httpmiddleware "github.com/wolfeidau/eventdesk/internal/http"
	"github.com/wolfeidau/eventdesk/internal/identity"
	memoryidentity "github.com/wolfeidau/eventdesk/internal/identity/memory"
	"github.com/wolfeidau/eventdesk/internal/logger"
	"github.com/wolfeidau/eventdesk/internal/session"
	memorystore "github.com/wolfeidau/eventdesk/internal/store/memory"
	postgresstore "github.com/wolfeidau/eventdesk/internal/store/postgres"
	"github.com/wolfeidau/eventdesk/internal/store/rest"
	"github.com/wolfeidau/eventdesk/internal/telemetry"
	"github.com/wolfeidau/eventdesk/internal/web"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"127.0.0.1:8080" env:"EVENTDESK_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"EVENTDESK_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"EVENTDESK_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for the JSON API" default:"http://localhost:3000" env:"EVENTDESK_CORS_ORIGINS"`

	// Browser contexts and abuse protection
	ContextIdleTTL    time.Duration `help:"how long an idle browser context keeps its session" default:"2h" env:"EVENTDESK_CONTEXT_IDLE_TTL"`
	MaxContexts       int           `help:"maximum signed-in browser contexts held in memory" default:"10000" env:"EVENTDESK_MAX_CONTEXTS"`
	AuthRate          float64       `help:"sign-in and sign-up submissions per second per client IP" default:"5" env:"EVENTDESK_AUTH_RATE"`
	AuthBurst         int           `help:"sign-in and sign-up burst per client IP" default:"10" env:"EVENTDESK_AUTH_BURST"`
	TrustProxyHeaders bool          `help:"take the client IP from X-Forwarded-For and X-Real-IP (only behind a proxy that sets them)" default:"false" env:"EVENTDESK_TRUST_PROXY_HEADERS"`

	// Telemetry
	Tracing          bool    `help:"enable OpenTelemetry tracing and metrics export" default:"false" env:"EVENTDESK_TRACING"`
	TraceSampleRatio float64 `help:"fraction of root traces sampled" default:"1" env:"EVENTDESK_TRACE_SAMPLE_RATIO"`

	// Backends
	Provider       ProviderFlags       `embed:"" prefix:"provider-"`
	IdentityType   string              `help:"identity provider (http or memory)" default:"http" env:"EVENTDESK_IDENTITY_TYPE" enum:"http,memory"`
	MemoryIdentity MemoryIdentityFlags `embed:"" prefix:"memory-identity-"`
	StoreType      string              `help:"record store (rest, memory or postgres)" default:"rest" env:"EVENTDESK_STORE_TYPE" enum:"rest,memory,postgres"`
	PostgresStore  PostgresStoreFlags  `embed:"" prefix:"postgres-"`
}

type ProviderFlags struct {
	URL           string        `help:"identity and record provider base URL" default:"http://localhost:54321" env:"EVENTDESK_PROVIDER_URL"`
	AnonKey       string        `help:"provider anon key" default:"" env:"EVENTDESK_PROVIDER_ANON_KEY"`
	Timeout       time.Duration `help:"provider request timeout" default:"30s" env:"EVENTDESK_PROVIDER_TIMEOUT"`
	SettingsCache string        `help:"directory caching provider settings responses (empty for in-memory)" default:"" env:"EVENTDESK_PROVIDER_SETTINGS_CACHE"`
}

func (p *ProviderFlags) config(debug bool) client.Config {
	return client.Config{
		ProviderURL: p.URL,
		AnonKey:     p.AnonKey,
		Timeout:     p.Timeout,
		Debug:       debug,
	}
}

type MemoryIdentityFlags struct {
	Secret        string        `help:"HS256 signing secret for the in-memory identity provider (development only)" env:"EVENTDESK_MEMORY_IDENTITY_SECRET"`
	TokenTTL      time.Duration `help:"access token lifetime" default:"1h"`
	DisableSignup bool          `help:"reject sign-ups" default:"false"`
}

func (m *MemoryIdentityFlags) Validate() error {
	if len(m.Secret) < 32 {
		return errors.New("memory identity secret must be at least 32 bytes (--memory-identity-secret or EVENTDESK_MEMORY_IDENTITY_SECRET)")
	}
	return nil
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	QueryTimeout    time.Duration `help:"per query timeout" default:"10s"`
	LogQueries      bool          `help:"log every statement at debug level" default:"false"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"EVENTDESK_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) config() postgresstore.Config {
	return postgresstore.Config{
		Pool: postgresstore.PoolConfig{
			ConnString:      s.ConnString,
			MaxConns:        s.MaxConns,
			MinConns:        s.MinConns,
			MaxConnLifetime: s.MaxConnLifetime,
			MaxConnIdleTime: s.MaxConnIdleTime,
			LogQueries:      s.LogQueries,
		},
		AutoMigrate:  s.AutoMigrate,
		QueryTimeout: s.QueryTimeout,
	}
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "eventdesk-server",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	flags, err := features.Load(os.Getenv)
	if err != nil {
		return fmt.Errorf("failed to load feature flags: %w", err)
	}
	for _, f := range flags.All() {
		log.Debug().Str("flag", f.Path).Bool("enabled", f.Enabled).Msg("feature flag")
	}

	clientCfg := c.Provider.config(globals.Debug)
	if c.IdentityType == "http" || c.StoreType == "rest" {
		if err := clientCfg.Validate(); err != nil {
			return fmt.Errorf("invalid provider configuration: %w", err)
		}
	}

	provider, err := c.createProvider(clientCfg, log)
	if err != nil {
		return err
	}

	access, closeStore, err := c.createAccess(ctx, clientCfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	handler, err := web.NewHandler(web.Config{
		Provider: provider,
		Access:   access,
		Flags:    flags,
	})
	if err != nil {
		return fmt.Errorf("failed to create views: %w", err)
	}

	contexts := web.NewContexts(func() (session.Client, error) {
		return session.New(provider)
	}, web.ContextsConfig{
		IdleTTL:      c.ContextIdleTTL,
		SecureCookie: c.Cert != "",
		MaxContexts:  c.MaxContexts,
	})
	go contexts.Run(ctx)

	authLimiter := httpmiddleware.NewIPRateLimiter("auth", httpmiddleware.RateLimitConfig{
		Rate:  rate.Limit(c.AuthRate),
		Burst: c.AuthBurst,
	})
	go authLimiter.Run(ctx)

	router := web.NewRouter(handler, contexts, web.RouterConfig{
		Logger:            log,
		CORSOrigins:       c.CORSOrigins,
		AuthLimiter:       authLimiter,
		TrustProxyHeaders: c.TrustProxyHeaders,
	})

	srv := configureHTTPServer(c.Listen, otelhttp.NewHandler(router, "eventdesk"))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Str("identity", c.IdentityType).Str("store", c.StoreType).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" && c.Key != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (c *ServeCmd) createProvider(cfg client.Config, log zerolog.Logger) (identity.Provider, error) {
	switch c.IdentityType {
	case "memory":
		if err := c.MemoryIdentity.Validate(); err != nil {
			return nil, err
		}
		log.Warn().Msg("Using in-memory identity provider, accounts are lost on restart")
		return memoryidentity.New(memoryidentity.Config{
			SigningSecret: []byte(c.MemoryIdentity.Secret),
			TokenTTL:      c.MemoryIdentity.TokenTTL,
			DisableSignup: c.MemoryIdentity.DisableSignup,
		})
	default:
		log.Info().Str("url", cfg.BaseURL()).Msg("Using HTTP identity provider")
		return identity.NewHTTPProvider(cfg,
			client.NewHTTPClient(cfg, log),
			client.NewCachingHTTPClient(cfg, c.Provider.SettingsCache, log),
		), nil
	}
}

// createAccess builds the data access for each browser context and a func
// releasing the store.
func (c *ServeCmd) createAccess(ctx context.Context, cfg client.Config, log zerolog.Logger) (web.AccessFunc, func(), error) {
	switch c.StoreType {
	case "memory":
		log.Info().Msg("Using in-memory record store")
		backend := memorystore.New(
			memorystore.WithPrimaryKey(data.Events.Table, "id"),
			memorystore.WithPrimaryKey(data.Profiles.Table, data.Profiles.ConflictColumn),
		)
		return web.SharedAccess(data.NewService(backend)), func() {}, nil

	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}
		backend, err := postgresstore.New(ctx, c.PostgresStore.config())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		log.Info().Bool("auto_migrate", c.PostgresStore.AutoMigrate).Msg("Using PostgreSQL record store")
		return web.SharedAccess(data.NewService(backend)), backend.Close, nil

	default:
		log.Info().Str("url", cfg.BaseURL()).Msg("Using REST record store")
		transport := client.NewTransport(cfg, http.DefaultTransport, log)
		return func(ctx context.Context, sc session.Client) data.Access {
			var ts oauth2.TokenSource
			if sc.Session() != nil {
				ts = sc.TokenSource(ctx)
			}
			return data.NewService(rest.New(cfg, transport, ts))
		}, func() {}, nil
	}
}
