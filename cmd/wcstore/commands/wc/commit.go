package wc

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

var (
	commitRev             int64
	commitAuthor          string
	commitChecksum        string
	commitKeepChangelists bool
	commitKeepLocks       bool
)

var commitCmd = &cobra.Command{
	Use:   "commit [PATH]",
	Short: "Fold local changes into BASE",
	Long: `Record a completed commit of PATH's subtree at --rev: additions become
BASE nodes, deletions leave a not-present marker and local property edits
become pristine.

Examples:
  wcstore wc commit --rev 43 --author alice
  wcstore wc commit src/main.c --rev 44 --checksum '$sha1$...'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommit,
}

func init() {
	commitCmd.Flags().Int64Var(&commitRev, "rev", 0, "New revision (required)")
	commitCmd.Flags().StringVar(&commitAuthor, "author", "", "Author of the commit")
	commitCmd.Flags().StringVar(&commitChecksum, "checksum", "", "Committed text of a file commit root")
	commitCmd.Flags().BoolVar(&commitKeepChangelists, "keep-changelists", false, "Keep changelist assignments")
	commitCmd.Flags().BoolVar(&commitKeepLocks, "keep-locks", false, "Keep repository locks")
	_ = commitCmd.MarkFlagRequired("rev")
}

func runCommit(cmd *cobra.Command, args []string) error {
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

	err = s.root.GlobalCommit(ctx, p, db.CommitParams{
		NewRevision:     commitRev,
		ChangedDate:     time.Now().UTC(),
		ChangedAuthor:   commitAuthor,
		Checksum:        commitChecksum,
		KeepChangelists: commitKeepChangelists,
		KeepLocks:       commitKeepLocks,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Committed revision %d.\n", commitRev)
	return nil
}
