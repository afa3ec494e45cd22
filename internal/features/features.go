// Package features holds the process-wide feature flags used to decide which
// views are mounted. Flags are loaded once at startup and never change.
package features

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"sort"

	"gopkg.in/yaml.v3"
)

// TestingEnv is the environment variable that enables the testing pages.
const TestingEnv = "TESTING_ENABLED"

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the YAML shape of the flag set.
type Config struct {
	Testing bool         `yaml:"testing" json:"testing"`
	Events  EventsConfig `yaml:"events" json:"events"`
}

// EventsConfig groups the event feature flags.
type EventsConfig struct {
	Creation      bool `yaml:"creation" json:"creation"`
	GuestList     bool `yaml:"guestList" json:"guestList"`
	RSVP          bool `yaml:"rsvp" json:"rsvp"`
	Notifications bool `yaml:"notifications" json:"notifications"`
}

// Flags is an immutable set of feature flags addressed by dotted path.
type Flags struct {
	cfg    Config
	values map[string]bool
}

// Flag is a single resolved flag.
type Flag struct {
	Path    string `json:"path" yaml:"path"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Load builds the flag set from the embedded defaults and the environment.
func Load(getenv func(string) string) (*Flags, error) {
	return Parse(defaultsYAML, getenv)
}

// Parse builds the flag set from YAML data, then applies TESTING_ENABLED.
// Only the exact value "true" enables testing.
func Parse(data []byte, getenv func(string) string) (*Flags, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode feature flags: %w", err)
	}

	if getenv != nil {
		cfg.Testing = getenv(TestingEnv) == "true"
	}

	return New(cfg), nil
}

// New returns flags for a fixed configuration.
func New(cfg Config) *Flags {
	return &Flags{
		cfg: cfg,
		values: map[string]bool{
			"testing":              cfg.Testing,
			"events.creation":      cfg.Events.Creation,
			"events.guestList":     cfg.Events.GuestList,
			"events.rsvp":          cfg.Events.RSVP,
			"events.notifications": cfg.Events.Notifications,
		},
	}
}

// IsEnabled reports whether the flag at path is on.
// Unknown paths, group paths such as "events", and a nil receiver are all off.
func (f *Flags) IsEnabled(path string) bool {
	if f == nil {
		return false
	}
	return f.values[path]
}

// Config returns a copy of the underlying configuration.
func (f *Flags) Config() Config {
	if f == nil {
		return Config{}
	}
	return f.cfg
}

// All returns every flag sorted by path.
func (f *Flags) All() []Flag {
	if f == nil {
		return nil
	}
	flags := make([]Flag, 0, len(f.values))
	for path, enabled := range f.values {
		flags = append(flags, Flag{Path: path, Enabled: enabled})
	}
	sort.Slice(flags, func(i, j int) bool {
		return flags[i].Path < flags[j].Path
	})
	return flags
}

// Gate mounts next only when the flag at path is enabled. A disabled gate
// renders nothing and answers 404.
func (f *Flags) Gate(path string, next http.Handler) http.Handler {
	if f.IsEnabled(path) {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
}

// GateFunc is Gate for handler functions.
func (f *Flags) GateFunc(path string, next http.HandlerFunc) http.Handler {
	return f.Gate(path, next)
}

// FuncMap exposes the flag predicate to templates as "enabled".
func (f *Flags) FuncMap() template.FuncMap {
	return template.FuncMap{
		"enabled": f.IsEnabled,
	}
}
