package wc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/internal/cli/prompt"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

var (
	revertDepth string
	revertYes   bool
)

var revertCmd = &cobra.Command{
	Use:   "revert PATH",
	Short: "Discard local changes",
	Long: `Discard the WORKING layers and local property edits of PATH. With
--depth infinity the whole subtree is reverted; with --depth empty PATH
must be the root of its operation.

Examples:
  wcstore wc revert src/main.c
  wcstore wc revert --depth infinity --yes src`,
	Args: cobra.ExactArgs(1),
	RunE: runRevert,
}

func init() {
	revertCmd.Flags().StringVar(&revertDepth, "depth", "empty", "Revert depth (empty|infinity)")
	revertCmd.Flags().BoolVarP(&revertYes, "yes", "y", false, "Do not ask for confirmation")
}

func runRevert(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	p := relArg(args[0])
	depth, err := cmdutil.ParseDepth(revertDepth)
	if err != nil {
		return err
	}

	label := fmt.Sprintf("Discard local changes to '%s'", displayPath(p))
	if depth == db.DepthInfinity {
		label = fmt.Sprintf("Discard all local changes below '%s'", displayPath(p))
	}
	ok, err := prompt.ConfirmWithForce(label, revertYes)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Revert cancelled")
		return nil
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if err := s.root.OpRevert(ctx, p, depth, cancelFunc(ctx)); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reverted '%s'\n", displayPath(p))
	return nil
}
