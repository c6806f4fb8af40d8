package wifi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNoCredentials is returned when nothing has been stored yet.
var ErrNoCredentials = errors.New("no stored credentials")

// CredentialStore persists the last network the station joined.
type CredentialStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
}

// FileStore keeps credentials in a YAML file readable only by the owner.
type FileStore struct {
	Path string

	mu sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

type storedCredentials struct {
	Version int         `yaml:"version"`
	Station Credentials `yaml:"station"`
}

// Load reads the stored credentials. Returns ErrNoCredentials when the file
// does not exist or holds no network name.
func (s *FileStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{}, fmt.Errorf("failed to read credential store: %w", err)
	}

	var stored storedCredentials
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credential store: %w", err)
	}
	if !stored.Station.Valid() {
		return Credentials{}, ErrNoCredentials
	}
	return stored.Station, nil
}

// Save writes credentials atomically (temporary file, then rename).
func (s *FileStore) Save(creds Credentials) error {
	if !creds.Valid() {
		return fmt.Errorf("refusing to store credentials without an ssid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := yaml.Marshal(storedCredentials{Version: 1, Station: creds})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmpPath := s.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary credential file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save credential file: %w", err)
	}
	return nil
}

// MemoryStore is an in-process CredentialStore.
type MemoryStore struct {
	mu    sync.Mutex
	creds *Credentials
}

// Load implements CredentialStore
func (m *MemoryStore) Load() (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, ErrNoCredentials
	}
	return *m.creds, nil
}

// Save implements CredentialStore
func (m *MemoryStore) Save(creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &creds
	return nil
}
