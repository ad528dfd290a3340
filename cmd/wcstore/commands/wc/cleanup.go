package wc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run the pending work queue",
	Long: `Apply the queued working-file updates of the working copy, in order.
An interrupted run resumes with the item that failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		pending, err := s.root.WQLen(ctx)
		if err != nil {
			return err
		}
		if pending == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Work queue is empty")
			return nil
		}

		done, err := s.root.RunWorkQueue(ctx, s.rt.Pristine)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Applied %d of %d work items\n", done, pending)
		return err
	},
}
