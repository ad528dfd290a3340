package wc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

var (
	addKind   string
	addTarget string
	addProps  []string
)

var addCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Schedule a node for addition",
	Long: `Schedule a plain addition of a file, directory or symlink. The parent
must exist and the path must not.

Examples:
  wcstore wc add src/main.c
  wcstore wc add --kind dir docs --prop svn:ignore=build
  wcstore wc add --kind symlink latest --target releases/1.2`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addKind, "kind", "file", "Node kind (file|dir|symlink)")
	addCmd.Flags().StringVar(&addTarget, "target", "", "Symlink target")
	addCmd.Flags().StringArrayVar(&addProps, "prop", nil, "Property as name=value (repeatable)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	p := relArg(args[0])
	props, err := cmdutil.ParseProps(addProps)
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	switch db.Kind(addKind) {
	case db.KindFile:
		err = s.root.OpAddFile(ctx, p, props)
	case db.KindDir:
		err = s.root.OpAddDirectory(ctx, p, props)
	case db.KindSymlink:
		if addTarget == "" {
			return fmt.Errorf("--target is required for symlinks")
		}
		err = s.root.OpAddSymlink(ctx, p, addTarget, props)
	default:
		return fmt.Errorf("invalid kind %q (valid: file, dir, symlink)", addKind)
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "A  %s\n", p)
	return nil
}
