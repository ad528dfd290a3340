package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/pkg/config"
	"github.com/marmos91/wcstore/pkg/wc/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the wcstore configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  wcstore config validate

  # Validate specific config file
  wcstore config validate --config /etc/wcstore/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Database.Type == store.DatabaseTypeSQLite && cfg.Database.SQLite.Path == store.MemoryPath {
		warnings = append(warnings, "SQLite database is in memory - working copies are lost on exit")
	}
	if cfg.Pristine.Type == "memory" {
		warnings = append(warnings, "Pristine store is in memory - texts are lost on exit")
	}
	if cfg.Telemetry.Profiling.Enabled && !cfg.Telemetry.Enabled {
		warnings = append(warnings, "Profiling is enabled while tracing is disabled")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Database type:   %s\n", cfg.Database.Type)
	_, _ = fmt.Fprintf(out, "  Pristine store:  %s\n", cfg.Pristine.Type)
	_, _ = fmt.Fprintf(out, "  Metrics:         %t (port %d)\n", cfg.Metrics.Enabled, cfg.Metrics.Port)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}
