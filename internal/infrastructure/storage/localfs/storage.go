package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

// Storage keeps artifacts as plain files below basePath. Keys may contain
// slashes; parent directories are created on save.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./artifact"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "create storage dir", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Save writes to a temporary sibling and renames it into place so readers
// never observe a half-written artifact.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.WrapError(domain.ErrIO, "create artifact dir", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return domain.WrapError(domain.ErrIO, "create file", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return domain.WrapError(domain.ErrIO, "write file", err)
	}
	if err := f.Close(); err != nil {
		return domain.WrapError(domain.ErrIO, "close file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return domain.WrapError(domain.ErrIO, "rename file", fmt.Errorf("%s: %w", key, err))
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(key))
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "open file", err)
	}
	return f, nil
}
