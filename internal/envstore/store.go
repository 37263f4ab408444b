// Package envstore keeps per-principal supplementary context files
// (uploaded environment values) consulted by config generation.
package envstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes per-principal .env files under a base directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save stores the supplementary env content for a principal, replacing any
// previous upload.
func (s *Store) Save(principalID string, content []byte) error {
	path, err := s.path(principalID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

// Load returns the principal's env content. The second return is false
// when no upload exists.
func (s *Store) Load(principalID string) (string, bool, error) {
	path, err := s.path(principalID)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read env file: %w", err)
	}
	return string(data), true, nil
}

// Delete removes a principal's upload if present.
func (s *Store) Delete(principalID string) error {
	path, err := s.path(principalID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove env file: %w", err)
	}
	return nil
}

// path builds the env file path, rejecting ids that would escape the base
// directory.
func (s *Store) path(principalID string) (string, error) {
	if principalID == "" || strings.ContainsAny(principalID, `/\`) || strings.Contains(principalID, "..") {
		return "", fmt.Errorf("invalid principal id %q", principalID)
	}
	return filepath.Join(s.dir, principalID, ".env"), nil
}
