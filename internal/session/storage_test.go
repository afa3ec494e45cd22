package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/eventdesk/internal/models"
)

func testSession() *models.Session {
	return &models.Session{
		UserID:       uuid.New(),
		Email:        "alice@example.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func TestMemoryStorage(t *testing.T) {
	m := NewMemoryStorage()

	s, err := m.Load()
	require.NoError(t, err)
	require.Nil(t, s)

	want := testSession()
	require.NoError(t, m.Save(want))

	want.Email = "changed@example.com"
	got, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got.Email, "storage keeps its own copy")

	require.NoError(t, m.Clear())
	s, err = m.Load()
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	f, err := NewFileStorage(path)
	require.NoError(t, err)
	require.Equal(t, path, f.Path())

	s, err := f.Load()
	require.NoError(t, err)
	require.Nil(t, s)

	want := testSession()
	require.NoError(t, f.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := f.Load()
	require.NoError(t, err)
	require.Equal(t, want.UserID, got.UserID)
	require.Equal(t, want.AccessToken, got.AccessToken)
	require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, f.Clear())
	require.NoError(t, f.Clear(), "clearing twice is fine")

	s, err = f.Load()
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestFileStorage_corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	f, err := NewFileStorage(path)
	require.NoError(t, err)

	_, err = f.Load()
	require.Error(t, err)
}
