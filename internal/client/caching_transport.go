package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/rs/zerolog"
)

// NewCachingHTTPClient creates a provider client that honours Cache-Control on
// GET responses. It is only used for endpoints whose answers are safe to reuse,
// such as the identity provider settings; session and record calls always use
// NewHTTPClient.
func NewCachingHTTPClient(config Config, cacheDir string, log zerolog.Logger) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		// Use disk-based cache for persistence across restarts
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = NewTransport(config, http.DefaultTransport, log)

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}
