// Package envstore is the appliance configuration store: a flat key/value
// .env file shared with the feeder containers.
package envstore

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// ErrNoFile is returned by Save on a store that has no backing file.
var ErrNoFile = errors.New("envstore: no backing file")

// Store caches the parsed file and re-reads it whenever its size or
// modification time changes, so edits made by shell scripts are picked up.
// It is safe for concurrent use.
type Store struct {
	path string

	mu      sync.RWMutex
	values  map[string]string
	modTime time.Time
	size    int64
}

// Open returns a store backed by path. A missing file is not an error: the
// store starts empty and Save creates the file.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]string{}}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromMap returns an in-memory store with no backing file.
func FromMap(values map[string]string) *Store {
	s := &Store{values: make(map[string]string, len(values))}
	maps.Copy(s.values, values)
	return s
}

// Path returns the backing file, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Get returns the trimmed value of key, or def when it is absent or empty.
func (s *Store) Get(key, def string) string {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v := strings.TrimSpace(s.values[key]); v != "" {
		return v
	}
	return def
}

// Lookup returns the raw value and whether the key is present at all.
func (s *Store) Lookup(key string) (string, bool) {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Bool reports whether key holds "true" or "yes", ignoring case. The feed
// containers use "true" for enable flags and "yes" for MLAT flags.
func (s *Store) Bool(key string) bool {
	switch strings.ToLower(s.Get(key, "")) {
	case "true", "yes":
		return true
	}
	return false
}

// Snapshot returns a copy of every key.
func (s *Store) Snapshot() map[string]string {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Set stores a single key and persists the file.
func (s *Store) Set(key, value string) error {
	return s.SetMany(map[string]string{key: value})
}

// SetMany stores every pair and persists the file once.
func (s *Store) SetMany(values map[string]string) error {
	s.refresh()
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.values, values)
	if s.path == "" {
		return nil
	}
	return s.writeLocked()
}

// Save persists the current values.
func (s *Store) Save() error {
	if s.path == "" {
		return ErrNoFile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

func (s *Store) refresh() {
	if s.path == "" {
		return
	}
	fi, err := os.Stat(s.path)
	if err != nil {
		return
	}
	s.mu.RLock()
	fresh := fi.ModTime().Equal(s.modTime) && fi.Size() == s.size
	s.mu.RUnlock()
	if fresh {
		return
	}
	// A failed re-read keeps the last good values.
	_ = s.reload()
}

func (s *Store) reload() error {
	fi, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}
	values, err := godotenv.Read(s.path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values
	s.modTime = fi.ModTime()
	s.size = fi.Size()
	return nil
}

// writeLocked replaces the file atomically. Caller holds s.mu.
func (s *Store) writeLocked() error {
	content, err := godotenv.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("marshal env: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".env-*")
	if err != nil {
		return fmt.Errorf("create temp env: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp env: %w", err)
	}
	if _, err := tmp.WriteString(content + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp env: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp env: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	if fi, err := os.Stat(s.path); err == nil {
		s.modTime = fi.ModTime()
		s.size = fi.Size()
	}
	return nil
}
