// Package badger provides a BadgerDB-backed pristine backend.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/wcstore/pkg/wc/pristine"
)

const keyPrefix = "pristine:"

// Config holds configuration for the BadgerDB backend.
type Config struct {
	// DBPath is the directory holding the database files.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the database in memory. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSize sizes the block cache in bytes. Default: 64 MiB.
	BlockCacheSize int64 `mapstructure:"block_cache_size"`

	// BadgerOptions overrides every other setting when non-nil.
	BadgerOptions *badgerdb.Options `mapstructure:"-"`
}

// Store is a BadgerDB implementation of pristine.Backend.
type Store struct {
	db *badgerdb.DB
}

// New opens a BadgerDB backend.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	if cfg.BadgerOptions != nil {
		opts = *cfg.BadgerOptions
	} else {
		if cfg.InMemory {
			opts = badgerdb.DefaultOptions("").WithInMemory(true)
		} else {
			if cfg.DBPath == "" {
				return nil, errors.New("badger pristine store requires db_path")
			}
			opts = badgerdb.DefaultOptions(cfg.DBPath)
		}

		opts = opts.WithLoggingLevel(badgerdb.WARNING)
		opts = opts.WithCompression(options.ZSTD)

		blockCache := cfg.BlockCacheSize
		if blockCache == 0 {
			blockCache = 64 << 20
		}
		opts = opts.WithBlockCacheSize(blockCache)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}
	return &Store{db: db}, nil
}

// NewInMemory opens an in-memory backend.
func NewInMemory(ctx context.Context) (*Store, error) {
	return New(ctx, Config{InMemory: true})
}

// Name returns "badger".
func (s *Store) Name() string {
	return "badger"
}

func textKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// Put stores data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.convert(s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(textKey(key), data)
	}))
}

// Get returns the data stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(textKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, pristine.ErrNotFound
	}
	return data, s.convert(err)
}

// Exists reports whether key is stored.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(textKey(key))
		return err
	})
	if err == badgerdb.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, s.convert(err)
	}
	return true, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.convert(s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(textKey(key)); err != nil && err != badgerdb.ErrKeyNotFound {
			return err
		}
		return nil
	}))
}

// Keys lists every stored key.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	return keys, s.convert(err)
}

// HealthCheck verifies the database can serve a read transaction.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.View(func(txn *badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", s.convert(err))
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) convert(err error) error {
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return pristine.ErrStoreClosed
	}
	return err
}

var _ pristine.Backend = (*Store)(nil)
