package features

import (
	"bytes"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func envOf(kv map[string]string) func(string) string {
	return func(key string) string {
		return kv[key]
	}
}

func TestLoad_defaults(t *testing.T) {
	flags, err := Load(envOf(nil))
	require.NoError(t, err)

	require.False(t, flags.IsEnabled("testing"))
	require.True(t, flags.IsEnabled("events.creation"))
	require.True(t, flags.IsEnabled("events.guestList"))
	require.True(t, flags.IsEnabled("events.rsvp"))
	require.False(t, flags.IsEnabled("events.notifications"))
}

func TestLoad_testingEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"", false},
		{"false", false},
		{"1", false},
		{"TRUE", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			flags, err := Load(envOf(map[string]string{TestingEnv: tt.value}))
			require.NoError(t, err)
			require.Equal(t, tt.want, flags.IsEnabled("testing"))
		})
	}
}

func TestIsEnabled_failsClosed(t *testing.T) {
	flags := New(Config{Testing: true, Events: EventsConfig{Creation: true}})

	require.False(t, flags.IsEnabled("events"))
	require.False(t, flags.IsEnabled("events.unknown"))
	require.False(t, flags.IsEnabled(""))
	require.False(t, flags.IsEnabled("Events.Creation"))

	var nilFlags *Flags
	require.False(t, nilFlags.IsEnabled("events.creation"))
	require.Nil(t, nilFlags.All())
}

func TestParse_rejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("events:\n  creatoin: true\n"), nil)
	require.Error(t, err)
}

func TestParse_withoutEnvKeepsYAMLValue(t *testing.T) {
	flags, err := Parse([]byte("testing: true\n"), nil)
	require.NoError(t, err)
	require.True(t, flags.IsEnabled("testing"))
	require.False(t, flags.IsEnabled("events.creation"))
}

func TestConfig_isACopy(t *testing.T) {
	flags := New(Config{Events: EventsConfig{Creation: true}})

	cfg := flags.Config()
	cfg.Events.Creation = false

	require.True(t, flags.IsEnabled("events.creation"))
	require.True(t, flags.Config().Events.Creation)
}

func TestAll_sorted(t *testing.T) {
	flags := New(Config{Events: EventsConfig{Creation: true, RSVP: true}})

	all := flags.All()
	require.Len(t, all, 5)
	require.Equal(t, "events.creation", all[0].Path)
	require.True(t, all[0].Enabled)
	require.Equal(t, "testing", all[4].Path)
	require.False(t, all[4].Enabled)
}

func TestGate(t *testing.T) {
	flags := New(Config{Events: EventsConfig{Creation: true}})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("form"))
	})

	t.Run("enabled flag mounts handler", func(t *testing.T) {
		rec := httptest.NewRecorder()
		flags.Gate("events.creation", inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/new", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "form", rec.Body.String())
	})

	t.Run("disabled flag renders nothing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		flags.GateFunc("events.notifications", inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Empty(t, rec.Body.String())
	})

	t.Run("unknown flag renders nothing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		flags.Gate("nope", inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFuncMap(t *testing.T) {
	flags := New(Config{Events: EventsConfig{Creation: true}})
	tmpl := template.Must(template.New("t").Funcs(flags.FuncMap()).Parse(
		`{{if enabled "events.creation"}}create{{end}}{{if enabled "events.notifications"}}notify{{end}}`))

	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, nil))
	require.Equal(t, "create", buf.String())
}
