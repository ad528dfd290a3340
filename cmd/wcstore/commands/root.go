// Package commands implements the wcstore command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/cmd/wcstore/commands/config"
	"github.com/marmos91/wcstore/cmd/wcstore/commands/kq"
	"github.com/marmos91/wcstore/cmd/wcstore/commands/wc"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "wcstore",
	Short: "wcstore - working-copy metadata store and event multiplexer",
	Long: `wcstore manages the administrative metadata of version-control working
copies (layered node rows, pristine texts, locks and the work queue) and
ships a kqueue-style event multiplexer for timers, processes, descriptors
and paths.

Every configuration key can be overridden with a WCSTORE_* environment
variable, e.g. WCSTORE_LOGGING_LEVEL=DEBUG.

Use "wcstore [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Version = Version
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/wcstore/config.yaml)")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	flags.BoolVarP(&cmdutil.Flags.Verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(wc.Cmd)
	rootCmd.AddCommand(kq.Cmd)
}
