package web

import (
	"net/http"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/eventdesk/internal/http"
	"github.com/wolfeidau/eventdesk/internal/logger"
	"github.com/wolfeidau/eventdesk/internal/metrics"
)

// RouterConfig configures the middleware around the views.
type RouterConfig struct {
	Logger zerolog.Logger
	// CORSOrigins may call the JSON API with credentials.
	CORSOrigins []string
	// AuthLimiter limits sign-in and sign-up submissions per client IP. Nil disables limiting.
	AuthLimiter *httpmiddleware.IPRateLimiter
	// TrustProxyHeaders takes the client IP from X-Forwarded-For and X-Real-IP.
	// Enable only behind a proxy that sets those headers itself.
	TrustProxyHeaders bool
}

// NewRouter wires the pages, the JSON API and the operational endpoints.
// Pages whose feature flag is off answer 404.
func NewRouter(h *Handler, contexts *Contexts, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(httpmiddleware.ClientIPMiddleware(cfg.TrustProxyHeaders))
	r.Use(logger.Requests(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	limitAuth := func(next http.Handler) http.Handler { return next }
	if cfg.AuthLimiter != nil {
		limitAuth = cfg.AuthLimiter.Middleware()
	}

	// HTML pages, protected against cross-origin form posts
	r.Group(func(r chi.Router) {
		r.Use(csrf.New().Handler)
		r.Use(contexts.Middleware())

		r.Get("/", h.Home)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/signup", h.SignUpForm)
			r.With(limitAuth).Post("/signup", h.SignUp)
			r.Get("/signin", h.SignInForm)
			r.With(limitAuth).Post("/signin", h.SignIn)
			r.Post("/signout", h.SignOut)
			r.Get("/profile", h.Profile)
			r.Post("/profile", h.SaveProfile)
		})

		r.Get("/events", h.Events)
		r.Method(http.MethodGet, "/events/new", h.flags.GateFunc("events.creation", h.NewEventForm))
		r.Method(http.MethodPost, "/events/new", h.flags.GateFunc("events.creation", h.CreateEvent))

		r.Method(http.MethodGet, "/test", h.flags.GateFunc("testing", h.TestIndex))
		r.Method(http.MethodGet, "/test/connection", h.flags.GateFunc("testing", h.TestConnection))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
		}).Handler)
		r.Use(contexts.Middleware())

		r.Get("/profile", h.APIProfile)
		r.Get("/events", h.APIEvents)
		r.Get("/features", h.APIFeatures)
	})

	return r
}
