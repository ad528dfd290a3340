package wc

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
)

var statusCmd = &cobra.Command{
	Use:   "status [PATH]",
	Short: "List a subtree with its status",
	Long: `List every node of a subtree with its composite status.

Flags column: C conflicted, M properties modified, L locked,
> moved away, < moved here.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		p := ""
		if len(args) > 0 {
			p = relArg(args[0])
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		infos, err := s.root.ReadSubtreeInfo(ctx, p)
		if err != nil {
			return err
		}
		printer, err := cmdutil.Printer(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if !cmdutil.IsTableOutput() {
			return printer.Print(infos)
		}
		return printer.Print(statusTable(infos))
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [DIR]",
	Short: "List the children of a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		p := ""
		if len(args) > 0 {
			p = relArg(args[0])
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		infos, err := s.root.ReadChildrenInfo(ctx, p)
		if err != nil {
			return err
		}
		printer, err := cmdutil.Printer(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if !cmdutil.IsTableOutput() {
			return printer.Print(infos)
		}
		return printer.Print(statusTable(infos))
	},
}
