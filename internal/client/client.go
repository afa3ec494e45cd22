package client

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/eventdesk/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds common provider client configuration
type Config struct {
	ProviderURL string
	AnonKey     string
	Timeout     time.Duration
	Debug       bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ProviderURL: "http://localhost:54321",
		Timeout:     30 * time.Second,
		Debug:       false,
	}
}

// Validate checks the provider URL is usable.
func (c Config) Validate() error {
	if c.ProviderURL == "" {
		return errors.New("provider URL is required")
	}
	u, err := url.Parse(c.ProviderURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("provider URL must be http or https")
	}
	if u.Host == "" {
		return errors.New("provider URL must include a host")
	}
	return nil
}

// BaseURL returns the provider URL without a trailing slash.
func (c Config) BaseURL() string {
	return strings.TrimRight(c.ProviderURL, "/")
}

// NewHTTPClient creates an instrumented HTTP client that identifies itself to the
// provider with the anon key.
func NewHTTPClient(config Config, log zerolog.Logger) *http.Client {
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: NewTransport(config, http.DefaultTransport, log),
	}
}

// NewTransport layers provider headers, call logging and tracing over base.
func NewTransport(config Config, base http.RoundTripper, log zerolog.Logger) http.RoundTripper {
	var rt http.RoundTripper = logger.NewTransport(base, log)
	rt = &APIKeyTransport{Base: rt, Key: config.AnonKey}
	return otelhttp.NewTransport(rt)
}

// APIKeyTransport adds the provider anon key to each request. Requests without
// an Authorization header are sent as the anonymous role.
type APIKeyTransport struct {
	Base http.RoundTripper
	Key  string
}

func (t *APIKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Key == "" {
		return t.Base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("apikey", t.Key)
	if clone.Header.Get("Authorization") == "" {
		clone.Header.Set("Authorization", "Bearer "+t.Key)
	}
	return t.Base.RoundTrip(clone)
}
