// Package storage keeps the files a session produces: the uploaded
// original, page previews and signed documents.
package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound indicates a missing artifact.
var ErrNotFound = errors.New("artifact not found")

// Store writes artifacts into one directory. Every artifact name starts
// with a random token so uploads with the same file name never collide.
type Store struct {
	dir string
}

// New creates the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Put writes data under a new "<token>_<name>" artifact and returns the
// artifact name.
func (s *Store) Put(name string, data []byte) (string, error) {
	artifact := uuid.NewString() + "_" + cleanName(name)
	if err := os.WriteFile(filepath.Join(s.dir, artifact), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", artifact, err)
	}
	log.Printf("[storage] Wrote %s (%d bytes)", artifact, len(data))
	return artifact, nil
}

// Get reads an artifact.
func (s *Store) Get(artifact string) ([]byte, error) {
	path, err := s.Path(artifact)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, artifact)
	}
	return data, err
}

// Path returns the file path of an artifact.
func (s *Store) Path(artifact string) (string, error) {
	if artifact == "" || artifact != filepath.Base(artifact) || strings.HasPrefix(artifact, ".") {
		return "", fmt.Errorf("%w: %q", ErrNotFound, artifact)
	}
	return filepath.Join(s.dir, artifact), nil
}

// Delete removes an artifact. Missing artifacts are ignored.
func (s *Store) Delete(artifact string) error {
	path, err := s.Path(artifact)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == '/' || r == ':':
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "document"
	}
	return name
}
