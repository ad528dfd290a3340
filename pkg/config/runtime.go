package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/internal/telemetry"
	"github.com/marmos91/wcstore/pkg/kevent"
	"github.com/marmos91/wcstore/pkg/metrics"
	"github.com/marmos91/wcstore/pkg/wc/db"
	"github.com/marmos91/wcstore/pkg/wc/pristine"
)

// Runtime holds the components built from a configuration.
type Runtime struct {
	Config   *Config
	DB       *db.DB
	Pristine *pristine.Store
	Kevent   *kevent.Registry

	WCMetrics     metrics.WCMetrics
	KeventMetrics metrics.KeventMetrics

	shutdownTelemetry func(context.Context) error
	stopProfiling     func() error
}

// InitLogging configures the global logger from cfg.
func InitLogging(cfg *Config) error {
	return logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// InitializeRuntime creates every component described by cfg. version is
// reported to the trace and profile backends.
//
// The steps run in order:
//  1. Telemetry and profiling, so later steps are observed
//  2. The metrics registry and collectors, when enabled
//  3. The working-copy database
//  4. The pristine text store
//  5. The event filter registry
//
// On failure every component created so far is released.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	rt, err := config.InitializeRuntime(ctx, cfg, version)
//	if err != nil {
//	    log.Fatalf("Failed to initialize: %v", err)
//	}
//	defer rt.Close(ctx)
func InitializeRuntime(ctx context.Context, cfg *Config, version string) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, errors.New("configuration is nil")
	}

	rt := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.SampleRate = cfg.Telemetry.SampleRate
	rt.shutdownTelemetry, err = telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	rt.stopProfiling, err = telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    tcfg.ServiceName,
		ServiceVersion: tcfg.ServiceVersion,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Debug("Metrics enabled", "port", cfg.Metrics.Port)
	}
	rt.WCMetrics = metrics.NewWCMetrics()
	rt.KeventMetrics = metrics.NewKeventMetrics()

	rt.DB, err = CreateDB(cfg, rt.WCMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Database opened", "type", cfg.Database.Type)

	rt.Pristine, err = CreatePristineStore(ctx, cfg.Pristine, rt.WCMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create pristine store: %w", err)
	}
	logger.Debug("Pristine store created", logger.KeyBackend, rt.Pristine.Backend().Name())

	rt.Kevent = CreateKeventRegistry(cfg.Kevent, rt.KeventMetrics)

	return rt, nil
}

// Close releases every component. Safe to call on a partially built Runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close(ctx), rt.DB.Store().Close())
	}
	if rt.Pristine != nil {
		errs = append(errs, rt.Pristine.Close())
	}
	if rt.stopProfiling != nil {
		errs = append(errs, rt.stopProfiling())
	}
	if rt.shutdownTelemetry != nil {
		errs = append(errs, rt.shutdownTelemetry(ctx))
	}
	return errors.Join(errs...)
}
