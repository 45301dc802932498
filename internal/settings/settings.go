// Package settings persists the shared yapm settings: registry access and
// the configured repositories. Global and project scope use the same
// document format; the project scope only carries a registry.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
	"github.com/frederic-klein/yapm/internal/repository"
)

// Registry holds package registry access.
type Registry struct {
	Address   string `toml:"address,omitempty"`
	Port      int    `toml:"port,omitempty"`
	AuthToken string `toml:"auth_token,omitempty"`
}

// IsSet reports whether address and token are both present.
func (r Registry) IsSet() bool {
	return r.Address != "" && r.AuthToken != ""
}

// Settings is the persisted document.
type Settings struct {
	Registry     Registry                 `toml:"registry"`
	Repositories []*repository.Repository `toml:"repositories,omitempty"`
}

// Repository returns the record named name.
func (s *Settings) Repository(name string) (*repository.Repository, bool) {
	for _, r := range s.Repositories {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Store binds settings to a file.
type Store struct {
	path string

	mu       sync.Mutex
	settings *Settings
	saved    []byte
}

// Load reads the settings file at path. A missing file loads empty.
func Load(path string) (*Store, error) {
	s := &Store{path: path, settings: &Settings{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), s.settings); err != nil {
		return nil, yerrors.New(yerrors.ParseFailed, "decoding "+path, err)
	}
	s.saved = data
	return s, nil
}

// Path returns the settings file path.
func (s *Store) Path() string { return s.path }

// Settings returns the live document. Changes are written by Save.
func (s *Store) Settings() *Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Save writes the document through a temporary file when its encoding
// differs from what was last read or written.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s.settings); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	data := buf.Bytes()
	if bytes.Equal(data, s.saved) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(s.path), err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	s.saved = append([]byte(nil), data...)
	return nil
}
