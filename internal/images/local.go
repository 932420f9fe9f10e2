package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps images in a directory on disk.
type LocalStore struct {
	dir string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Save writes to a temp file and renames it into place so readers never see
// a partial image.
func (s *LocalStore) Save(_ context.Context, name, _ string, r io.Reader, _ int64) error {
	if err := validName(name); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, string, error) {
	if err := validName(name); err != nil {
		return nil, "", err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return f, contentTypeFor(name), nil
}

func (s *LocalStore) Exists(_ context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
