package wc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
)

var copyCmd = &cobra.Command{
	Use:   "copy SRC DST",
	Short: "Copy a subtree in WORKING",
	Long: `Copy SRC and its descendants to DST. DST records SRC's repository
location as its copy origin; local additions below SRC are copied as
additions.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCopy(cmd, args, false)
	},
}

var moveCmd = &cobra.Command{
	Use:   "move SRC DST",
	Short: "Move a subtree in WORKING",
	Long: `Move SRC to DST: a copy of SRC at DST marked moved-here, and a
deletion of SRC that records DST as its destination.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCopy(cmd, args, true)
	},
}

func runCopy(cmd *cobra.Command, args []string, move bool) error {
	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	src, dst := relArg(args[0]), relArg(args[1])

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if move {
		err = s.root.OpMove(ctx, src, dst)
	} else {
		err = s.root.OpCopy(ctx, src, dst)
	}
	if err != nil {
		return err
	}

	if move {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "D  %s\nA  %s (moved from %s)\n", src, dst, src)
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "A  %s (copied from %s)\n", dst, src)
	}
	return nil
}
