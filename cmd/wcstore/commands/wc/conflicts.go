package wc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
)

var changelistCmd = &cobra.Command{
	Use:   "changelist PATH [NAME]",
	Short: "Assign a path to a changelist",
	Long:  `Assign PATH to changelist NAME, or remove it from its changelist when NAME is omitted.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		p := relArg(args[0])
		name := ""
		if len(args) > 1 {
			name = args[1]
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		if err := s.root.SetChangelist(ctx, p, name); err != nil {
			return err
		}
		if name == "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Path '%s' is no longer a member of a changelist.\n", displayPath(p))
		} else {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Path '%s' is now a member of changelist '%s'.\n", displayPath(p), name)
		}
		return nil
	},
}

var (
	resolveText  bool
	resolveProps []string
	resolveTree  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve PATH",
	Short: "Mark conflicts resolved",
	Long: `Mark the conflicts of PATH resolved. Without flags every recorded
conflict is resolved.

Examples:
  wcstore wc resolve src/main.c --text
  wcstore wc resolve docs --prop svn:ignore
  wcstore wc resolve lib`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		p := relArg(args[0])
		text, props, tree := resolveText, resolveProps, resolveTree
		all := !text && len(props) == 0 && !tree

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		if all {
			conflict, err := s.root.ReadConflict(ctx, p)
			if err != nil {
				return err
			}
			if conflict != nil {
				props = conflict.Props
			}
			text, tree = true, true
		}

		if err := s.root.ResolveConflict(ctx, p, text, props, tree); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Resolved conflicted state of '%s'\n", displayPath(p))
		return nil
	},
}

var modifiedCmd = &cobra.Command{
	Use:   "modified [PATH]",
	Short: "Report local modifications below a path",
	Long:  `Exit with "modified" or "unmodified" depending on whether PATH's subtree has local changes.`,
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

		modified, err := s.root.HasLocalMods(ctx, p, cancelFunc(ctx))
		if err != nil {
			return err
		}
		if modified {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "modified")
		} else {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "unmodified")
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveText, "text", false, "Resolve the text conflict")
	resolveCmd.Flags().StringArrayVar(&resolveProps, "prop", nil, "Resolve the conflict on this property (repeatable)")
	resolveCmd.Flags().BoolVar(&resolveTree, "tree", false, "Resolve the tree conflict")
}
