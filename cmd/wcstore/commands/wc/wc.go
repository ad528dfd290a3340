// Package wc implements the working-copy subcommands.
package wc

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/pkg/config"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

var rootDir string

// Cmd is the wc subcommand.
var Cmd = &cobra.Command{
	Use:   "wc",
	Short: "Inspect and modify working-copy metadata",
	Long: `Inspect and modify the metadata of a working copy.

Paths are relative to the working-copy root selected with -C (default: the
current directory); "." names the root itself.

Subcommands:
  init        Create a working copy
  info        Show the composite state of a path
  status      List a subtree with its status
  ls          List the children of a directory
  add         Schedule a node for addition
  copy        Copy a subtree in WORKING
  move        Move a subtree in WORKING
  delete      Schedule a subtree for deletion
  revert      Discard local changes
  commit      Fold local changes into BASE
  propset     Set a versioned property
  propdel     Remove a versioned property
  proplist    List versioned properties
  changelist  Assign a path to a changelist
  resolve     Mark conflicts resolved
  modified    Report local modifications below a path
  cleanup     Run the pending work queue
  pristine    Manage pristine texts`,
}

func init() {
	Cmd.PersistentFlags().StringVarP(&rootDir, "root", "C", ".", "Working-copy root directory")

	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(infoCmd)
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(lsCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(copyCmd)
	Cmd.AddCommand(moveCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(revertCmd)
	Cmd.AddCommand(commitCmd)
	Cmd.AddCommand(propsetCmd)
	Cmd.AddCommand(propdelCmd)
	Cmd.AddCommand(proplistCmd)
	Cmd.AddCommand(changelistCmd)
	Cmd.AddCommand(resolveCmd)
	Cmd.AddCommand(modifiedCmd)
	Cmd.AddCommand(cleanupCmd)
	Cmd.AddCommand(pristineCmd)
}

// session is an opened runtime plus the working-copy root of -C.
type session struct {
	rt   *config.Runtime
	root *db.Root
}

func (s *session) Close(ctx context.Context) {
	if err := s.rt.Close(ctx); err != nil {
		logger.Warn("shutdown error", logger.Err(err))
	}
}

// openSession opens the runtime and the working copy selected by -C.
func openSession(ctx context.Context) (*session, error) {
	abspath, err := cmdutil.Abspath(rootDir)
	if err != nil {
		return nil, err
	}
	rt, err := cmdutil.OpenRuntime(ctx)
	if err != nil {
		return nil, err
	}
	root, err := rt.DB.Open(ctx, abspath)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return &session{rt: rt, root: root}, nil
}

// relArg converts a command-line path to a working-copy relpath.
func relArg(arg string) string {
	p := filepath.ToSlash(filepath.Clean(arg))
	p = strings.TrimPrefix(p, "./")
	if p == "." || p == "/" {
		return ""
	}
	return p
}

// cancelFunc adapts ctx to the cancellation callback of long scans.
func cancelFunc(ctx context.Context) func() error {
	return ctx.Err
}
