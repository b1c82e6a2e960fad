// Package blob provides content-addressed storage for user textures,
// comments and channel descriptions. Keys are the hex SHA-1 of the content,
// laid out as <root>/<first 2 hex>/<full 40 hex>.
package blob

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var (
	ErrNotFound   = errors.New("blob: not found")
	ErrInvalidKey = errors.New("blob: invalid key")
)

// Store is a directory-backed blob store. Writes are atomic: content lands
// in a temp file that is renamed into place.
type Store struct {
	root string
	log  *slog.Logger
}

// Open prepares a store rooted at dir, creating it if needed.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &Store{root: dir, log: log.With("component", "blob")}, nil
}

// Key returns the store key for content.
func Key(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

func (s *Store) path(key string) (string, error) {
	if len(key) != sha1.Size*2 {
		return "", ErrInvalidKey
	}
	if _, err := hex.DecodeString(key); err != nil {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, key[:2], key), nil
}

// Put stores content and returns its key. Storing the same content twice is
// a no-op.
func (s *Store) Put(content []byte) (string, error) {
	key := Key(content)
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("blob: create bucket: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("blob: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("blob: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blob: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o640); err != nil {
		return "", fmt.Errorf("blob: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("blob: rename: %w", err)
	}
	s.log.Debug("stored blob", "key", key, "size", len(content))
	return key, nil
}

// Get fetches the content for key. Content whose hash no longer matches the
// key is treated as missing and dropped.
func (s *Store) Get(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read: %w", err)
	}
	if Key(content) != key {
		s.log.Warn("corrupt blob, removing", "key", key)
		os.Remove(path)
		return nil, ErrNotFound
	}
	return content, nil
}

// Has reports whether key is present without reading the content.
func (s *Store) Has(key string) bool {
	path, err := s.path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes a blob. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: delete: %w", err)
	}
	return nil
}
