// Package artifact stores training outputs as named blobs under a run
// directory.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrIO marks a failure to persist or read an artifact.
var ErrIO = errors.New("artifact io error")

// Store is the artifact collaborator the trainer writes through.
type Store interface {
	CreateDir(name string) error
	RemoveDir(name string) error
	Write(name string, data []byte) error
	Read(name string) ([]byte, error)
	Path(name string) string
}

// DirStore keeps artifacts as files under Root. Names are slash-separated
// paths relative to Root.
type DirStore struct {
	Root string
}

// NewDirStore creates root if needed. Existing contents are left in place.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty artifact dir", ErrIO)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", ErrIO, root, err)
	}
	return &DirStore{Root: root}, nil
}

// Path returns the on-disk location of name.
func (s *DirStore) Path(name string) string {
	return filepath.Join(s.Root, filepath.FromSlash(name))
}

func (s *DirStore) checkName(name string) error {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(name)))
	if name == "" || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || filepath.IsAbs(name) {
		return fmt.Errorf("%w: invalid artifact name %q", ErrIO, name)
	}
	return nil
}

func (s *DirStore) CreateDir(name string) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Path(name), 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrIO, name, err)
	}
	return nil
}

// RemoveDir deletes name and everything below it. A missing directory is
// not an error.
func (s *DirStore) RemoveDir(name string) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Path(name)); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrIO, name, err)
	}
	return nil
}

// Write replaces name atomically: data goes to a temp file in the same
// directory which is then renamed over the target.
func (s *DirStore) Write(name string, data []byte) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	path := s.Path(name)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrIO, dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrIO, name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIO, name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", ErrIO, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrIO, name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrIO, name, err)
	}
	return nil
}

func (s *DirStore) Read(name string) ([]byte, error) {
	if err := s.checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, name, err)
	}
	return data, nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(s Store, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrIO, name, err)
	}
	return s.Write(name, append(data, '\n'))
}

// ReadJSON decodes name into v.
func ReadJSON(s Store, name string, v any) error {
	data, err := s.Read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: unmarshal %s: %v", ErrIO, name, err)
	}
	return nil
}
