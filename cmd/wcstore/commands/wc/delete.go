package wc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
)

var deleteMovedTo string

var deleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Schedule a subtree for deletion",
	Long: `Schedule PATH and its descendants for deletion. A plain addition is
removed outright; anything with a BASE or copied layer below is shadowed.

With --moved-to the deletion is recorded as the source half of a move to
that path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		p := relArg(args[0])
		movedTo := ""
		if deleteMovedTo != "" {
			movedTo = relArg(deleteMovedTo)
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		if err := s.root.OpDelete(ctx, p, movedTo); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "D  %s\n", p)
		return nil
	},
}

func init() {
	deleteCmd.Flags().StringVar(&deleteMovedTo, "moved-to", "", "Record the deletion as a move to this path")
}
