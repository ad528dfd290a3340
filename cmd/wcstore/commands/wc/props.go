package wc

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/pkg/wc/db"
)

var proplistPristine bool

var propsetCmd = &cobra.Command{
	Use:   "propset PATH NAME=VALUE...",
	Short: "Set versioned properties",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := cmdutil.ParseProps(args[1:])
		if err != nil {
			return err
		}
		return editProps(cmd, relArg(args[0]), func(props db.Props) {
			for name, value := range set {
				props[name] = value
			}
		})
	},
}

var propdelCmd = &cobra.Command{
	Use:   "propdel PATH NAME...",
	Short: "Remove versioned properties",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editProps(cmd, relArg(args[0]), func(props db.Props) {
			for _, name := range args[1:] {
				delete(props, name)
			}
		})
	},
}

// editProps applies edit to the actual properties of p in one session.
func editProps(cmd *cobra.Command, p string, edit func(db.Props)) error {
	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	props, err := s.root.ReadProps(ctx, p)
	if err != nil {
		return err
	}
	props = props.Clone()
	if props == nil {
		props = db.Props{}
	}
	edit(props)

	if err := s.root.OpSetProps(ctx, p, props, nil); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), " M %s\n", displayPath(p))
	return nil
}

var proplistCmd = &cobra.Command{
	Use:   "proplist [PATH]",
	Short: "List versioned properties",
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

		var props db.Props
		if proplistPristine {
			props, err = s.root.ReadPristineProps(ctx, p)
		} else {
			props, err = s.root.ReadProps(ctx, p)
		}
		if err != nil {
			return err
		}

		printer, err := cmdutil.Printer(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if !cmdutil.IsTableOutput() {
			return printer.Print(props)
		}
		return printer.Print(propsTable(props))
	},
}

func init() {
	proplistCmd.Flags().BoolVar(&proplistPristine, "pristine", false, "List the pristine properties")
}
