package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Long: `Write a configuration file with default values.

Examples:
  # Write to $XDG_CONFIG_HOME/wcstore/config.yaml
  wcstore config init

  # Write to a custom path, replacing any existing file
  wcstore config init --config ./wcstore.yaml --force`,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cmdutil.Flags.ConfigFile
	var err error
	if path != "" {
		err = config.InitConfigToPath(path, initForce)
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintln(out, "  2. Create a working copy with: wcstore wc init --url <repos-root>")
	return nil
}
