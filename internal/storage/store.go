// Package storage provides durable local key-value persistence for the
// bridge. It backs the session record that must survive process restarts.
// Records are stored as individual JSON files under the user's config
// directory with restrictive permissions.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is the persistence seam used by the session manager. A missing key
// is reported through the bool, not as an error.
type Store interface {
	// Get returns the value for key, or ok=false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Set writes the value for key, creating the backing location if needed.
	Set(key, value string) error
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(key string) error
}

// FileStore persists each key as <dir>/<key>.json.
type FileStore struct {
	dir string
}

// DefaultDir returns the default storage directory.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/editor-bridge.
func DefaultDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "editor-bridge"), nil
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// lazily on the first Set.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the storage root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the value stored for key.
func (s *FileStore) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes the value for key. The directory is created with 0700 and the
// file with 0600; permissions are re-applied explicitly so a permissive
// umask cannot widen them.
func (s *FileStore) Set(key, value string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	path := s.path(key)
	if err := os.WriteFile(path, []byte(value), 0600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("set %s permissions: %w", key, err)
	}
	return nil
}

// Remove deletes the value stored for key.
func (s *FileStore) Remove(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
