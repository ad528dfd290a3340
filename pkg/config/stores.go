package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/wcstore/pkg/kevent"
	"github.com/marmos91/wcstore/pkg/metrics"
	"github.com/marmos91/wcstore/pkg/wc/db"
	"github.com/marmos91/wcstore/pkg/wc/pristine"
	pristinebadger "github.com/marmos91/wcstore/pkg/wc/pristine/badger"
	pristinefs "github.com/marmos91/wcstore/pkg/wc/pristine/fs"
	pristinememory "github.com/marmos91/wcstore/pkg/wc/pristine/memory"
	pristines3 "github.com/marmos91/wcstore/pkg/wc/pristine/s3"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// CreateDB opens the database described by cfg.Database and wraps it in
// a working-copy DB.
func CreateDB(cfg *Config, m metrics.WCMetrics) (*db.DB, error) {
	dbCfg := cfg.Database
	st, err := store.New(&dbCfg)
	if err != nil {
		return nil, err
	}
	return db.New(st, db.Options{Metrics: m}), nil
}

// CreatePristineStore creates the pristine text store described by cfg.
func CreatePristineStore(ctx context.Context, cfg PristineConfig, m metrics.WCMetrics) (*pristine.Store, error) {
	backend, err := createPristineBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pristine.New(backend, m), nil
}

func createPristineBackend(ctx context.Context, cfg PristineConfig) (pristine.Backend, error) {
	switch cfg.Type {
	case "memory":
		return pristinememory.New(), nil
	case "filesystem", "":
		return createFSPristineBackend(cfg.Filesystem)
	case "badger":
		return pristinebadger.New(ctx, pristinebadger.Config{
			DBPath:         cfg.Badger.Path,
			BlockCacheSize: cfg.Badger.BlockCacheSize.Int64(),
		})
	case "s3":
		return createS3PristineBackend(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown pristine store type: %q", cfg.Type)
	}
}

// createFSPristineBackend creates a filesystem pristine backend.
func createFSPristineBackend(options map[string]any) (pristine.Backend, error) {
	fsCfg := pristinefs.Config{DirMode: 0755, FileMode: 0444}
	if err := decodeOptions(options, &fsCfg); err != nil {
		return nil, fmt.Errorf("invalid filesystem pristine config: %w", err)
	}
	return pristinefs.New(fsCfg)
}

// createS3PristineBackend creates an S3 pristine backend.
func createS3PristineBackend(ctx context.Context, options map[string]any) (pristine.Backend, error) {
	var s3Cfg pristines3.Config
	if err := decodeOptions(options, &s3Cfg); err != nil {
		return nil, fmt.Errorf("invalid s3 pristine config: %w", err)
	}
	if err := validate.Struct(s3Cfg); err != nil {
		return nil, fmt.Errorf("invalid s3 pristine config: %w", formatValidationError(err))
	}
	return pristines3.NewFromConfig(ctx, s3Cfg)
}

// decodeOptions decodes a free-form backend section with the same hooks
// used for the whole file, so "0444" and "30s" are accepted.
func decodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       configDecodeHooks(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}

// CreateKeventRegistry creates the filter registry shared by every event
// queue of the process.
func CreateKeventRegistry(cfg KeventConfig, m metrics.KeventMetrics) *kevent.Registry {
	return kevent.NewRegistry(kevent.RegistryOptions{
		MaxTimers:        cfg.MaxTimers,
		PollInterval:     cfg.PollInterval,
		ProcPollInterval: cfg.ProcPollInterval,
		Metrics:          m,
	})
}
