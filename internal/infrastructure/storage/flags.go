// Package storage persists small pieces of local application state.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// FlagStore is a persisted set of boolean flags backed by one JSON file.
// The file is read lazily on first access and rewritten atomically on
// every Set.
type FlagStore struct {
	path string

	mu     sync.Mutex
	flags  map[string]bool
	loaded bool
}

// NewFlagStore creates a store at path; the file need not exist yet
func NewFlagStore(path string) *FlagStore {
	return &FlagStore{path: path}
}

// Path returns the backing file
func (s *FlagStore) Path() string {
	return s.path
}

// Get reports whether key is set
func (s *FlagStore) Get(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return false, err
	}
	return s.flags[key], nil
}

// Set marks key as set and persists the store
func (s *FlagStore) Set(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	if s.flags[key] {
		return nil
	}
	s.flags[key] = true
	if err := s.save(); err != nil {
		delete(s.flags, key)
		return err
	}
	return nil
}

func (s *FlagStore) load() error {
	if s.loaded {
		return nil
	}

	flags := make(map[string]bool)
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read state %s: %w", s.path, err)
	case len(data) > 0:
		if err := sonic.Unmarshal(data, &flags); err != nil {
			return fmt.Errorf("parse state %s: %w", s.path, err)
		}
	}

	s.flags = flags
	s.loaded = true
	return nil
}

func (s *FlagStore) save() error {
	data, err := sonic.MarshalIndent(s.flags, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
