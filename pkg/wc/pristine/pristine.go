// Package pristine provides the content-addressed store for pristine file
// texts referenced by node checksums.
//
// Texts are addressed by their SHA-1 checksum in the working-copy form
// "sha1$<hex>". A Store wraps a Backend that only knows about opaque keys;
// the Store owns hashing, checksum parsing, metrics and error translation.
package pristine

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/pkg/metrics"
	wcerrors "github.com/marmos91/wcstore/pkg/wc/errors"
)

// ChecksumKind is the prefix of every pristine checksum.
const ChecksumKind = "sha1"

// Common errors returned by Backend implementations.
var (
	// ErrNotFound is returned when a key has no stored text.
	ErrNotFound = errors.New("pristine text not found")

	// ErrStoreClosed is returned when operations are attempted on a closed backend.
	ErrStoreClosed = errors.New("store is closed")
)

// Backend stores opaque blobs by key. Keys are lowercase hex SHA-1 digests.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the data stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key has stored data.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Returns nil if it does not exist.
	Delete(ctx context.Context, key string) error

	// HealthCheck verifies the backend is operational.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// Checksum returns the pristine checksum of data.
func Checksum(data []byte) string {
	sum := sha1.Sum(data)
	return ChecksumKind + "$" + hex.EncodeToString(sum[:])
}

// ParseChecksum validates checksum and returns its hex digest.
func ParseChecksum(checksum string) (string, error) {
	kind, digest, ok := strings.Cut(checksum, "$")
	if !ok || kind != ChecksumKind {
		return "", wcerrors.NewInvalidArgumentError("", "unsupported checksum %q", checksum)
	}
	if len(digest) != sha1.Size*2 {
		return "", wcerrors.NewInvalidArgumentError("", "malformed checksum %q", checksum)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", wcerrors.NewInvalidArgumentError("", "malformed checksum %q", checksum)
	}
	return strings.ToLower(digest), nil
}

// Equal reports whether two checksums name the same text.
func Equal(a, b string) bool {
	da, err := ParseChecksum(a)
	if err != nil {
		return false
	}
	db, err := ParseChecksum(b)
	if err != nil {
		return false
	}
	return da == db
}

// Store is the pristine text store used by the working copy.
type Store struct {
	backend Backend
	metrics metrics.WCMetrics
}

// New wraps backend. m may be nil.
func New(backend Backend, m metrics.WCMetrics) *Store {
	return &Store{backend: backend, metrics: m}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Install reads r to the end, stores the text and returns its checksum.
// Installing a text that is already present is a no-op.
func (s *Store) Install(ctx context.Context, r io.Reader) (checksum string, err error) {
	start := time.Now()
	var size int64
	defer func() {
		metrics.ObservePristine(s.metrics, s.backend.Name(), "install", size, time.Since(start), err)
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pristine text: %w", err)
	}
	size = int64(len(data))

	checksum = Checksum(data)
	key := checksum[len(ChecksumKind)+1:]

	exists, err := s.backend.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%s: stat %s: %w", s.backend.Name(), key, err)
	}
	if exists {
		return checksum, nil
	}
	if err := s.backend.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("%s: put %s: %w", s.backend.Name(), key, err)
	}

	logger.DebugCtx(ctx, "pristine installed",
		logger.KeyBackend, s.backend.Name(), logger.KeyChecksum, checksum)
	return checksum, nil
}

// InstallBytes stores data and returns its checksum.
func (s *Store) InstallBytes(ctx context.Context, data []byte) (string, error) {
	return s.Install(ctx, bytes.NewReader(data))
}

// Read opens the text stored under checksum.
func (s *Store) Read(ctx context.Context, checksum string) (rc io.ReadCloser, err error) {
	start := time.Now()
	var size int64
	defer func() {
		metrics.ObservePristine(s.metrics, s.backend.Name(), "read", size, time.Since(start), err)
	}()

	key, err := ParseChecksum(checksum)
	if err != nil {
		return nil, err
	}
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, wcerrors.NewPristineNotFoundError(checksum)
		}
		return nil, fmt.Errorf("%s: get %s: %w", s.backend.Name(), key, err)
	}
	if Checksum(data) != ChecksumKind+"$"+key {
		return nil, wcerrors.NewCorruptError("", "pristine text %s does not match its checksum", checksum)
	}
	size = int64(len(data))
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Has reports whether the text for checksum is stored.
func (s *Store) Has(ctx context.Context, checksum string) (bool, error) {
	key, err := ParseChecksum(checksum)
	if err != nil {
		return false, err
	}
	return s.backend.Exists(ctx, key)
}

// Remove deletes the text stored under checksum. Removing an absent text
// is not an error.
func (s *Store) Remove(ctx context.Context, checksum string) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObservePristine(s.metrics, s.backend.Name(), "remove", 0, time.Since(start), err)
	}()

	key, err := ParseChecksum(checksum)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, key)
}

// HealthCheck verifies the backend is operational.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.backend.HealthCheck(ctx)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
