// Package creds persists gateway credentials for identity profiles.
//
// Each profile references a credential set by name. Credentials are
// written after a successful login (the gateway may refresh tokens on
// every session) and deleted when the gateway invalidates them, which
// forces a fresh QR registration on the next connection.
package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/protocol"
)

// ErrNotFound indicates no credentials exist for the requested
// reference. Callers treat this as a fresh registration, not a failure.
var ErrNotFound = errors.New("creds: not found")

// Store reads and writes credential sets keyed by reference.
type Store interface {
	// Load returns the credentials for ref, or ErrNotFound.
	Load(ref string) (*protocol.Credentials, error)

	// Save persists the credentials for ref, replacing any existing set.
	Save(ref string, c *protocol.Credentials) error

	// Delete removes the credentials for ref. Deleting a missing
	// reference is not an error.
	Delete(ref string) error
}

// FileStore keeps one JSON file per credential reference in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("creds: directory not set")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return "", fmt.Errorf("creds: invalid reference %q", ref)
	}
	return filepath.Join(s.dir, ref+".json"), nil
}

// Load implements Store.
func (s *FileStore) Load(ref string) (*protocol.Credentials, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading credentials %s: %w", ref, err)
	}

	var c protocol.Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing credentials %s: %w", ref, err)
	}
	return &c, nil
}

// Save implements Store. The file is written to a temp path and renamed
// so readers never observe a partial credential set.
func (s *FileStore) Save(ref string, c *protocol.Credentials) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("creds: nil credentials for %q", ref)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials %s: %w", ref, err)
	}

	tmp, err := os.CreateTemp(s.dir, ref+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp credentials file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing credentials %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing credentials %s: %w", ref, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing credentials %s: %w", ref, err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting credentials %s: %w", ref, err)
	}
	return nil
}
