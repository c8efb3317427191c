// Package secrets persists the bearer token across restarts. It is a plain
// key-value secret file under the user config dir, written with owner-only
// permissions; the authentication flow is its only writer.
package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const tokenFile = "token"

// FileStore stores the token in a single file inside dir.
type FileStore struct {
	dir string
}

// NewFileStore creates the store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// DefaultDir returns the per-user config location for the token.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "splitsmart"), nil
}

// Load returns the persisted token, or "" when none is stored.
func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, tokenFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Save persists the token, replacing any previous one.
func (s *FileStore) Save(token string) error {
	return os.WriteFile(filepath.Join(s.dir, tokenFile), []byte(token), 0o600)
}

// Clear removes the persisted token. Clearing an empty store is not an error.
func (s *FileStore) Clear() error {
	err := os.Remove(filepath.Join(s.dir, tokenFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
