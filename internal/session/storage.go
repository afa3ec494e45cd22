package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/models"
)

// Storage persists the session between process restarts. Load returns nil and
// no error when nothing is stored.
type Storage interface {
	Load() (*models.Session, error)
	Save(s *models.Session) error
	Clear() error
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
)

// MemoryStorage keeps the session in memory only.
type MemoryStorage struct {
	mu      sync.Mutex
	session *models.Session
}

// NewMemoryStorage creates an empty memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, nil
	}
	clone := *m.session
	return &clone, nil
}

func (m *MemoryStorage) Save(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *s
	m.session = &clone
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	return nil
}

// FileStorage stores the session as JSON in a file only the current user can read.
type FileStorage struct {
	path string
}

// NewFileStorage creates a file storage at path.
// If path is empty, uses ~/.eventdesk/session.json
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".eventdesk", "session.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	log.Debug().Str("path", path).Msg("session storage initialized")

	return &FileStorage{path: path}, nil
}

// Path returns the session file location.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Load() (*models.Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &s, nil
}

func (f *FileStorage) Save(s *models.Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Write atomically: temp file then rename
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (f *FileStorage) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
