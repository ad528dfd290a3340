// Package cmdutil provides shared utilities for wcstore commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/marmos91/wcstore/internal/cli/output"
	"github.com/marmos91/wcstore/pkg/config"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

// Version is injected by main at build time.
var Version = "dev"

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// LoadConfig loads the configuration and initializes logging. A missing
// configuration file is not an error: defaults and WCSTORE_* variables
// apply.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(Flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if Flags.Verbose {
		cfg.Logging.Level = "DEBUG"
	}
	if err := config.InitLogging(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// OpenRuntime loads the configuration and builds every component from it.
func OpenRuntime(ctx context.Context) (*config.Runtime, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return config.InitializeRuntime(ctx, cfg, Version)
}

// Abspath resolves a working-copy root argument, defaulting to the
// current directory.
func Abspath(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abspath, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}
	return abspath, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Printer returns a printer for the --output flag.
func Printer(w io.Writer) (*output.Printer, error) {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format), nil
}

// IsTableOutput reports whether --output selects the table format.
func IsTableOutput() bool {
	return Flags.Output == "" || Flags.Output == string(output.FormatTable)
}

// ParseDepth parses a depth flag value.
func ParseDepth(s string) (db.Depth, error) {
	switch d := db.Depth(strings.ToLower(s)); d {
	case db.DepthEmpty, db.DepthFiles, db.DepthImmediates, db.DepthInfinity:
		return d, nil
	default:
		return "", fmt.Errorf("invalid depth %q (valid: empty, files, immediates, infinity)", s)
	}
}

// ParseProps parses name=value pairs.
func ParseProps(pairs []string) (db.Props, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(db.Props, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid property %q (expected name=value)", pair)
		}
		props[name] = value
	}
	return props, nil
}
