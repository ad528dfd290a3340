package wc

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

var pristineCmd = &cobra.Command{
	Use:   "pristine",
	Short: "Manage pristine texts",
	Long: `Manage the content-addressed pristine texts of the configured store.

Subcommands:
  install  Store a file and print its checksum
  cat      Print a pristine text
  rm       Remove a pristine text`,
}

var installPath string

var pristineInstallCmd = &cobra.Command{
	Use:   "install FILE",
	Short: "Store a file and print its checksum",
	Long: `Store FILE ("-" for stdin) as a pristine text and print its checksum.

With --path the text is also queued for installation at that working-copy
path; run "wcstore wc cleanup" to apply it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			r = f
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		checksum, err := s.rt.Pristine.Install(ctx, r)
		if err != nil {
			return err
		}
		if installPath != "" {
			if err := s.root.WQAdd(ctx, db.FileInstall(relArg(installPath), checksum)); err != nil {
				return err
			}
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), checksum)
		return nil
	},
}

var pristineCatCmd = &cobra.Command{
	Use:   "cat CHECKSUM",
	Short: "Print a pristine text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		rt, err := cmdutil.OpenRuntime(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(ctx) }()

		rc, err := rt.Pristine.Read(ctx, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		_, err = io.Copy(cmd.OutOrStdout(), rc)
		return err
	},
}

var pristineRmCmd = &cobra.Command{
	Use:   "rm CHECKSUM",
	Short: "Remove a pristine text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		rt, err := cmdutil.OpenRuntime(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(ctx) }()

		return rt.Pristine.Remove(ctx, args[0])
	},
}

func init() {
	pristineInstallCmd.Flags().StringVar(&installPath, "path", "", "Queue installation of the text at this working-copy path")

	pristineCmd.AddCommand(pristineInstallCmd)
	pristineCmd.AddCommand(pristineCatCmd)
	pristineCmd.AddCommand(pristineRmCmd)
}
