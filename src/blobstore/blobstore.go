// Package blobstore stores attachment and generated-image bytes on a
// filesystem and issues time-limited signed links for serving them.
package blobstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrNotFound indicates no blob exists under the given name.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidName indicates the blob name is empty or tries to escape
	// the store directory.
	ErrInvalidName = errors.New("invalid blob name")
)

// Store reads and writes blobs under a single directory of an afero
// filesystem. Production uses the OS filesystem; tests use memfs.
type Store struct {
	fs      afero.Fs
	baseDir string
	signer  *Signer
	logger  *slog.Logger
}

// New creates a store rooted at baseDir, creating the directory if needed.
func New(fs afero.Fs, baseDir string, signer *Signer, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fs.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &Store{fs: fs, baseDir: baseDir, signer: signer, logger: logger}, nil
}

// NewOS creates a store on the OS filesystem.
func NewOS(baseDir string, signer *Signer, logger *slog.Logger) (*Store, error) {
	return New(afero.NewOsFs(), baseDir, signer, logger)
}

// Put writes the blob, overwriting any existing content under the name.
func (s *Store) Put(name string, data []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write blob %q: %w", name, err)
	}
	s.logger.Debug("stored blob", "name", name, "bytes", len(data))
	return nil
}

// Get returns the blob's content.
func (s *Store) Get(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %q: %w", name, err)
	}
	return data, nil
}

// Delete removes the blob. Deleting a missing blob returns ErrNotFound.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("delete blob %q: %w", name, err)
	}
	return nil
}

// Exists reports whether a blob is stored under the name.
func (s *Store) Exists(name string) (bool, error) {
	path, err := s.path(name)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, path)
}

// SignedURL returns a time-limited path for fetching the blob over HTTP.
func (s *Store) SignedURL(name string) (string, error) {
	if s.signer == nil {
		return "", errors.New("blob store has no signer configured")
	}
	if _, err := s.path(name); err != nil {
		return "", err
	}
	return s.signer.SignedURL(name), nil
}

// Verify checks a signed link's expiry and signature.
func (s *Store) Verify(name string, expires int64, signature string) error {
	if s.signer == nil {
		return errors.New("blob store has no signer configured")
	}
	return s.signer.Verify(name, expires, signature)
}

// path validates the name and resolves it inside the store directory. Names
// are flat: anything containing a separator or dot-dot is rejected.
func (s *Store) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.baseDir, name), nil
}
