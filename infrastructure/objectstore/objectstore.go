// Package objectstore stores large answers outside the scalar store. Entries
// whose answer lives here carry an opaque handle in their answer column.
package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefuse-ai/modelcache/domain/cache"
)

// Store is a content-addressed filesystem object store. Handles have the
// form "objects/<sha256>" and are stable for identical content.
type Store struct {
	dir string
}

// handlePrefix namespaces handles so they cannot be confused with inline
// answers.
const handlePrefix = "objects/"

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create object store directory: %v", cache.ErrStore, err)
	}
	return &Store{dir: dir}, nil
}

// IsHandle reports whether an answer column value refers to this store.
func IsHandle(answer string) bool {
	return strings.HasPrefix(answer, handlePrefix)
}

// Put stores the content and returns its handle. Identical content maps to
// the same handle, so repeated inserts of one answer store one object.
func (s *Store) Put(content string) (string, error) {
	sum := sha256.Sum256([]byte(content))
	key := hex.EncodeToString(sum[:])

	path := filepath.Join(s.dir, key)
	if _, err := os.Stat(path); err == nil {
		return handlePrefix + key, nil
	}

	// Write via a temp file so a crash never leaves a partial object under
	// its final name.
	tmp, err := os.CreateTemp(s.dir, "put-*")
	if err != nil {
		return "", fmt.Errorf("%w: create object: %v", cache.ErrStore, err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: write object: %v", cache.ErrStore, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: close object: %v", cache.ErrStore, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: finalise object: %v", cache.ErrStore, err)
	}

	return handlePrefix + key, nil
}

// Get reads the content behind a handle.
func (s *Store) Get(handle string) (string, error) {
	path, err := s.path(handle)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: object %s", cache.ErrNotFound, handle)
		}
		return "", fmt.Errorf("%w: read object %s: %v", cache.ErrStore, handle, err)
	}
	return string(data), nil
}

// AccessLink returns the filesystem path behind a handle for callers that
// stream large objects instead of loading them.
func (s *Store) AccessLink(handle string) (string, error) {
	path, err := s.path(handle)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: object %s", cache.ErrNotFound, handle)
		}
		return "", fmt.Errorf("%w: stat object %s: %v", cache.ErrStore, handle, err)
	}
	return path, nil
}

// Delete removes the object behind a handle. Deleting a missing object is
// not an error.
func (s *Store) Delete(handle string) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete object %s: %v", cache.ErrStore, handle, err)
	}
	return nil
}

// path validates a handle and maps it to its filesystem location.
func (s *Store) path(handle string) (string, error) {
	if !IsHandle(handle) {
		return "", fmt.Errorf("%w: %q is not an object handle", cache.ErrValidation, handle)
	}
	key := strings.TrimPrefix(handle, handlePrefix)
	if key == "" || strings.ContainsAny(key, "/\\") {
		return "", fmt.Errorf("%w: malformed object handle %q", cache.ErrValidation, handle)
	}
	return filepath.Join(s.dir, key), nil
}
