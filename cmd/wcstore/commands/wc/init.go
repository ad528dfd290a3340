package wc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

var (
	initURL     string
	initUUID    string
	initRelpath string
	initRev     int64
	initDepth   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a working copy",
	Long: `Create a working copy rooted at -C: the root record, the repository
record and the BASE row of the root directory.

A root checked out at a revision above zero starts incomplete.

Examples:
  # Empty working copy of a fresh repository
  wcstore wc init -C ./checkout --url https://svn.example.com/repo

  # Checkout of trunk at r42
  wcstore wc init -C ./trunk --url https://svn.example.com/repo --relpath trunk --rev 42`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initURL, "url", "", "Repository root URL (required)")
	initCmd.Flags().StringVar(&initUUID, "uuid", "", "Repository UUID (default: random)")
	initCmd.Flags().StringVar(&initRelpath, "relpath", "", "Repository path checked out at the root")
	initCmd.Flags().Int64Var(&initRev, "rev", 0, "Checked-out revision")
	initCmd.Flags().StringVar(&initDepth, "depth", "infinity", "Ambient depth of the root")
	_ = initCmd.MarkFlagRequired("url")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	depth, err := cmdutil.ParseDepth(initDepth)
	if err != nil {
		return err
	}
	abspath, err := cmdutil.Abspath(rootDir)
	if err != nil {
		return err
	}

	rt, err := cmdutil.OpenRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(ctx); err != nil {
			logger.Warn("shutdown error", logger.Err(err))
		}
	}()

	root, err := rt.DB.Init(ctx, abspath, db.InitOptions{
		ReposRootURL: initURL,
		ReposUUID:    initUUID,
		RootRelpath:  initRelpath,
		Revision:     initRev,
		Depth:        depth,
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Working copy created at %s (id %d)\n", root.Abspath(), root.WCID())
	return nil
}
