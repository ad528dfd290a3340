package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/wcstore/internal/bytesize"
	"github.com/marmos91/wcstore/internal/telemetry"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	cfg.Database.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	applyPristineDefaults(&cfg.Pristine)
	applyKeventDefaults(&cfg.Kevent)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = append([]string(nil), telemetry.DefaultProfileTypes...)
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyPristineDefaults keeps pristine texts next to the database unless
// told otherwise.
func applyPristineDefaults(cfg *PristineConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	switch cfg.Type {
	case "filesystem":
		if cfg.Filesystem == nil {
			cfg.Filesystem = make(map[string]any)
		}
		if _, ok := cfg.Filesystem["path"]; !ok {
			cfg.Filesystem["path"] = filepath.Join(".wc", "pristine")
		}
		if _, ok := cfg.Filesystem["create_dir"]; !ok {
			cfg.Filesystem["create_dir"] = true
		}
	case "badger":
		if cfg.Badger.Path == "" {
			cfg.Badger.Path = filepath.Join(".wc", "pristine.badger")
		}
		if cfg.Badger.BlockCacheSize == 0 {
			cfg.Badger.BlockCacheSize = 64 * bytesize.MiB
		}
	}
}

// applyKeventDefaults sets event multiplexer defaults.
func applyKeventDefaults(cfg *KeventConfig) {
	if cfg.MaxTimers == 0 {
		cfg.MaxTimers = 4096
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.ProcPollInterval == 0 {
		cfg.ProcPollInterval = 100 * time.Millisecond
	}
	if cfg.ScanBatch == 0 {
		cfg.ScanBatch = 64
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// The default configuration keeps the database and pristine texts under
// ./.wc, logs text at INFO to stderr, and leaves tracing and metrics off.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{Type: store.DatabaseTypeSQLite},
	}
	ApplyDefaults(cfg)
	return cfg
}
