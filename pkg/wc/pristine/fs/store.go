// Package fs provides a filesystem-backed pristine backend.
//
// Texts are stored under BasePath/<first two hex digits>/<digest>, the
// fan-out layout working copies use for their pristine directory.
package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/wcstore/pkg/wc/pristine"
)

// Config holds configuration for the filesystem backend.
type Config struct {
	// BasePath is the root directory for pristine texts.
	BasePath string `mapstructure:"path"`

	// CreateDir creates the base directory if it doesn't exist.
	CreateDir bool `mapstructure:"create_dir"`

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode `mapstructure:"dir_mode"`

	// FileMode is the permission mode for created files.
	// Default: 0444
	FileMode os.FileMode `mapstructure:"file_mode"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:  basePath,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0444,
	}
}

// Store is a filesystem-backed implementation of pristine.Backend.
type Store struct {
	mu       sync.RWMutex
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
	closed   bool
}

// New creates a filesystem backend with the given configuration.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0444
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("base path is not a directory")
	}

	return &Store{
		basePath: cfg.BasePath,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
	}, nil
}

// NewWithPath creates a filesystem backend with default configuration.
func NewWithPath(basePath string) (*Store, error) {
	return New(DefaultConfig(basePath))
}

// Name returns "fs".
func (s *Store) Name() string {
	return "fs"
}

func (s *Store) textPath(key string) string {
	if len(key) < 2 {
		return filepath.Join(s.basePath, key)
	}
	return filepath.Join(s.basePath, key[:2], key)
}

// Put writes data to a temporary file and renames it into place.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pristine.ErrStoreClosed
	}

	path := s.textPath(key)
	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), key+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, s.fileMode); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Get reads the text stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, pristine.ErrStoreClosed
	}

	data, err := os.ReadFile(s.textPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pristine.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Exists reports whether key is stored.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, pristine.ErrStoreClosed
	}

	_, err := os.Stat(s.textPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes the text stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pristine.ErrStoreClosed
	}

	err := os.Remove(s.textPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// HealthCheck verifies the base directory is still accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return pristine.ErrStoreClosed
	}
	info, err := os.Stat(s.basePath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("base path is not a directory")
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ pristine.Backend = (*Store)(nil)
