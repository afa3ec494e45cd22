package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/data"
	"github.com/wolfeidau/eventdesk/internal/features"
	memoryidentity "github.com/wolfeidau/eventdesk/internal/identity/memory"
	"github.com/wolfeidau/eventdesk/internal/session"
	memorystore "github.com/wolfeidau/eventdesk/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type cliEnv struct {
	provider *memoryidentity.Provider
	access   data.Access
	storage  session.Storage
	flags    *features.Flags
}

func newCLIEnv(t *testing.T, storage session.Storage, cfg memoryidentity.Config) *cliEnv {
	t.Helper()

	cfg.SigningSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.BcryptCost = bcrypt.MinCost
	provider, err := memoryidentity.New(cfg)
	require.NoError(t, err)

	backend := memorystore.New(
		memorystore.WithPrimaryKey("events", "id"),
		memorystore.WithPrimaryKey("profiles", "id"),
	)

	return &cliEnv{
		provider: provider,
		access:   data.NewService(backend),
		storage:  storage,
		flags:    features.New(features.Config{Events: features.EventsConfig{Creation: true}}),
	}
}

// exec runs r against a fresh app restored from the shared session storage,
// as a separate CLI invocation would.
func (e *cliEnv) exec(t *testing.T, r runner) (string, error) {
	t.Helper()

	sc, err := session.New(e.provider, session.WithStorage(e.storage))
	require.NoError(t, err)

	var out bytes.Buffer
	err = r.run(context.Background(), &app{session: sc, access: e.access, flags: e.flags, out: &out, close: func() {}})
	return out.String(), err
}

func signUp(t *testing.T, e *cliEnv) {
	t.Helper()
	out, err := e.exec(t, &SignUpCmd{Email: "ada@example.com", Password: "s3cret-pw", ConfirmPassword: "s3cret-pw"})
	require.NoError(t, err)
	require.Contains(t, out, "Signed up and signed in as ada@example.com")
}

func TestSignUp_persistsSessionAcrossInvocations(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})
	signUp(t, e)

	out, err := e.exec(t, &WhoAmICmd{})
	require.NoError(t, err)
	require.Contains(t, out, "ada@example.com")
}

func TestSignUp_passwordMismatch(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})

	_, err := e.exec(t, &SignUpCmd{Email: "ada@example.com", Password: "s3cret-pw", ConfirmPassword: "other-pw"})
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, 0, int(e.provider.Calls()))
}

func TestSignUp_confirmationPending(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{RequireConfirmation: true})

	out, err := e.exec(t, &SignUpCmd{Email: "ada@example.com", Password: "s3cret-pw", ConfirmPassword: "s3cret-pw"})
	require.NoError(t, err)
	require.Contains(t, out, "Check your email")

	_, err = e.exec(t, &WhoAmICmd{})
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

func TestSignInAndSignOut(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})
	signUp(t, e)

	out, err := e.exec(t, &SignOutCmd{})
	require.NoError(t, err)
	require.Contains(t, out, "Signed out")

	_, err = e.exec(t, &WhoAmICmd{})
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	_, err = e.exec(t, &SignInCmd{Email: "ada@example.com", Password: "wrong-pw"})
	require.ErrorIs(t, err, apperr.ErrAuth)

	out, err = e.exec(t, &SignInCmd{Email: "ada@example.com", Password: "s3cret-pw"})
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as ada@example.com")
}

func TestSession_fileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	storage, err := session.NewFileStorage(path)
	require.NoError(t, err)

	e := newCLIEnv(t, storage, memoryidentity.Config{})
	signUp(t, e)

	reopened, err := session.NewFileStorage(path)
	require.NoError(t, err)
	e.storage = reopened

	out, err := e.exec(t, &WhoAmICmd{})
	require.NoError(t, err)
	require.Contains(t, out, "ada@example.com")
}

func TestEvents_createAndList(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})
	signUp(t, e)

	out, err := e.exec(t, &EventsListCmd{})
	require.NoError(t, err)
	require.Contains(t, out, "No events found")

	out, err = e.exec(t, &EventsCreateCmd{Title: "Test Event", Start: "2025-02-01T12:00", End: "2025-02-01T14:00"})
	require.NoError(t, err)
	require.Contains(t, out, "Event created successfully")

	_, err = e.exec(t, &EventsCreateCmd{Title: "Earlier", Start: "2025-01-01T09:00", End: "2025-01-01T10:00"})
	require.NoError(t, err)

	out, err = e.exec(t, &EventsListCmd{})
	require.NoError(t, err)
	require.Contains(t, out, "Test Event")
	require.Contains(t, out, "2025-02-01 12:00")
	require.Contains(t, out, "Total events: 2")

	out, err = e.exec(t, &EventsListCmd{OutputFlags{Output: "json"}})
	require.NoError(t, err)
	var records []eventRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	require.Equal(t, "Earlier", records[0].Title)
	require.Equal(t, "Test Event", records[1].Title)

	out, err = e.exec(t, &EventsListCmd{OutputFlags{Output: "yaml"}})
	require.NoError(t, err)
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	require.Len(t, fromYAML, 2)
	require.Equal(t, "Test Event", fromYAML[1]["title"])
}

func TestEventsCreate_validation(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})
	signUp(t, e)

	tests := []struct {
		name string
		cmd  *EventsCreateCmd
	}{
		{"bad start", &EventsCreateCmd{Title: "x", Start: "tomorrow", End: "2025-02-01T14:00"}},
		{"bad end", &EventsCreateCmd{Title: "x", Start: "2025-02-01T12:00", End: "2025/02/01"}},
		{"end before start", &EventsCreateCmd{Title: "x", Start: "2025-02-01T12:00", End: "2025-02-01T11:00"}},
		{"blank title", &EventsCreateCmd{Title: "  ", Start: "2025-02-01T12:00", End: "2025-02-01T14:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.exec(t, tt.cmd)
			require.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestEventsCreate_disabled(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})
	e.flags = features.New(features.Config{})
	signUp(t, e)

	_, err := e.exec(t, &EventsCreateCmd{Title: "x", Start: "2025-02-01T12:00", End: "2025-02-01T14:00"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEvents_requireSignIn(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})

	_, err := e.exec(t, &EventsListCmd{})
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

func TestProfile_updateAndShow(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})
	signUp(t, e)

	out, err := e.exec(t, &ProfileShowCmd{})
	require.NoError(t, err)
	require.Contains(t, out, "ada@example.com")

	_, err = e.exec(t, &ProfileUpdateCmd{AvatarURL: ptr("ftp://example.com/a.png")})
	require.ErrorIs(t, err, apperr.ErrValidation)

	out, err = e.exec(t, &ProfileUpdateCmd{Username: ptr("ada"), FullName: ptr("Ada Lovelace"), AvatarURL: ptr("https://example.com/a.png")})
	require.NoError(t, err)
	require.Contains(t, out, "Profile updated")

	out, err = e.exec(t, &ProfileShowCmd{OutputFlags{Output: "json"}})
	require.NoError(t, err)
	var rec profileRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, "ada", rec.Username)
	require.Equal(t, "Ada Lovelace", rec.FullName)
	require.Equal(t, "https://example.com/a.png", rec.AvatarURL)
	require.False(t, rec.UpdatedAt.IsZero())
}

func TestProfileUpdate_keepsOmittedFields(t *testing.T) {
	e := newCLIEnv(t, session.NewMemoryStorage(), memoryidentity.Config{})
	signUp(t, e)

	_, err := e.exec(t, &ProfileUpdateCmd{Username: ptr("x"), AvatarURL: ptr("https://example.com/a.png")})
	require.NoError(t, err)

	_, err = e.exec(t, &ProfileUpdateCmd{FullName: ptr("Ada Lovelace")})
	require.NoError(t, err)

	out, err := e.exec(t, &ProfileShowCmd{OutputFlags{Output: "json"}})
	require.NoError(t, err)
	var rec profileRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, "x", rec.Username)
	require.Equal(t, "Ada Lovelace", rec.FullName)
	require.Equal(t, "https://example.com/a.png", rec.AvatarURL)

	_, err = e.exec(t, &ProfileUpdateCmd{AvatarURL: ptr("")})
	require.NoError(t, err)

	out, err = e.exec(t, &ProfileShowCmd{OutputFlags{Output: "json"}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, "x", rec.Username)
	require.Empty(t, rec.AvatarURL)
}

func ptr(s string) *string { return &s }

func TestFeatures_table(t *testing.T) {
	var out bytes.Buffer
	a := &app{flags: features.New(features.Config{Testing: true}), out: &out}

	require.NoError(t, (&FeaturesCmd{}).run(context.Background(), a))
	require.Contains(t, out.String(), "testing")
	require.Contains(t, out.String(), "events.creation")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
