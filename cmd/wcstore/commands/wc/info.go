package wc

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/internal/cli/output"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

var (
	infoBase bool
	infoScan bool
)

var infoCmd = &cobra.Command{
	Use:   "info [PATH]",
	Short: "Show the composite state of a path",
	Long: `Show the composite state of a path: its status, kind and revision
and where it comes from.

With --base only the BASE layer is reported. With --scan the deletion or
addition root and the move bookkeeping are reported as well.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoBase, "base", false, "Report the BASE layer only")
	infoCmd.Flags().BoolVar(&infoScan, "scan", false, "Also report addition and deletion roots")
}

// infoResult is the structured output of wc info.
type infoResult struct {
	Info     *db.Info          `json:"info" yaml:"info"`
	Deletion *db.DeletionInfo  `json:"deletion,omitempty" yaml:"deletion,omitempty"`
	Addition *db.AdditionInfo  `json:"addition,omitempty" yaml:"addition,omitempty"`
	MovedTo  *db.MovedFromInfo `json:"moved_from,omitempty" yaml:"moved_from,omitempty"`
}

func runInfo(cmd *cobra.Command, args []string) error {
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

	var info *db.Info
	if infoBase {
		info, err = s.root.BaseGetInfo(ctx, p)
	} else {
		info, err = s.root.ReadInfo(ctx, p)
	}
	if err != nil {
		return err
	}

	res := infoResult{Info: info}
	if infoScan {
		if info.Status == db.StatusDeleted {
			if res.Deletion, err = s.root.ScanDeletion(ctx, p); err != nil {
				return err
			}
		}
		if info.Status.IsAddition() {
			if res.Addition, err = s.root.ScanAddition(ctx, p); err != nil {
				return err
			}
			if info.MovedHere {
				if res.MovedTo, err = s.root.GetMovedFromInfo(ctx, p); err != nil {
					return err
				}
			}
		}
	}

	format, err := output.ParseFormat(cmdutil.Flags.Output)
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.NewPrinter(cmd.OutOrStdout(), format).Print(res)
	}

	fields := infoFields(info)
	if d := res.Deletion; d != nil {
		fields = appendNonEmpty(fields, "Deleted at", d.BaseDelRelpath)
		fields = appendNonEmpty(fields, "Deleted in WORKING at", d.WorkDelRelpath)
		fields = appendNonEmpty(fields, "Moved to op root", d.MovedToOpRoot)
	}
	if a := res.Addition; a != nil {
		fields = appendNonEmpty(fields, "Added at", displayPath(a.OpRoot))
		fields = appendNonEmpty(fields, "Addition status", a.Status.String())
		fields = appendNonEmpty(fields, "Moved from", a.MovedFromRelpath)
	}
	if m := res.MovedTo; m != nil {
		fields = appendNonEmpty(fields, "Move source op root", m.OpRoot)
	}
	return output.PrintFields(cmd.OutOrStdout(), fields)
}

func appendNonEmpty(fields [][2]string, key, value string) [][2]string {
	if value == "" {
		return fields
	}
	return append(fields, [2]string{key, value})
}
