// Package memory provides an in-memory pristine backend for testing.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/wcstore/pkg/wc/pristine"
)

// Store is an in-memory implementation of pristine.Backend.
type Store struct {
	mu     sync.RWMutex
	texts  map[string][]byte
	closed bool
}

// New creates a new in-memory backend.
func New() *Store {
	return &Store{
		texts: make(map[string][]byte),
	}
}

// Name returns "memory".
func (s *Store) Name() string {
	return "memory"
}

// Put stores a copy of data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pristine.ErrStoreClosed
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	s.texts[key] = copied
	return nil
}

// Get returns a copy of the data stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, pristine.ErrStoreClosed
	}

	data, ok := s.texts[key]
	if !ok {
		return nil, pristine.ErrNotFound
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Exists reports whether key is stored.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, pristine.ErrStoreClosed
	}
	_, ok := s.texts[key]
	return ok, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pristine.ErrStoreClosed
	}
	delete(s.texts, key)
	return nil
}

// HealthCheck fails only once the store is closed.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return pristine.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed and drops its contents.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.texts = nil
	return nil
}

// Len returns the number of stored texts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts)
}

var _ pristine.Backend = (*Store)(nil)
