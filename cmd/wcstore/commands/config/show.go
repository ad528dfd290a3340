package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/internal/cli/output"
	"github.com/marmos91/wcstore/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective wcstore configuration: the file, environment
overrides and defaults merged.

By default outputs YAML format. Use --output json to change format.

Examples:
  # Show effective config as YAML
  wcstore config show

  # Show as JSON
  wcstore config show -o json

  # Show specific config file
  wcstore config show --config /etc/wcstore/config.yaml`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(cmdutil.Flags.Output)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	default:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	}
}
