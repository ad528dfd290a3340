package kq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/internal/cli/output"
	"github.com/marmos91/wcstore/pkg/kevent"
)

var (
	watchPaths []string
	watchPIDs  []int
	watchFDs   []int
	watchTimer time.Duration
	watchCount int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Register filters and print events as they arrive",
	Long: `Register one or more filters on a fresh event queue and print every
event until interrupted or --count events were seen.

Examples:
  # Report writes, renames and deletion of a file
  wcstore kq watch --path ./notes.txt

  # Tick every 500ms, five times
  wcstore kq watch --timer 500ms --count 5

  # Report the exit of a process
  wcstore kq watch --pid 4242 --count 1 -o json`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringArrayVar(&watchPaths, "path", nil, "Watch a path for changes (repeatable)")
	watchCmd.Flags().IntSliceVar(&watchPIDs, "pid", nil, "Watch a process for exit, fork and exec (repeatable)")
	watchCmd.Flags().IntSliceVar(&watchFDs, "fd", nil, "Watch a descriptor for readability (repeatable)")
	watchCmd.Flags().DurationVar(&watchTimer, "timer", 0, "Fire a periodic timer")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Stop after this many events (0: until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	kq := reg.NewInstance()
	defer func() { _ = kq.Close() }()

	changes, err := watchChanges(reg)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return errors.New("nothing to watch: pass --path, --pid, --fd or --timer")
	}
	for _, ch := range changes {
		if err := kq.Register(ch); err != nil {
			return fmt.Errorf("register %s %d: %w", ch.Filter, ch.Ident, err)
		}
	}

	format, err := output.ParseFormat(cmdutil.Flags.Output)
	if err != nil {
		return err
	}
	printer := output.NewPrinter(cmd.OutOrStdout(), format)
	return watch(ctx, kq, watchCount, func(ev kevent.Event) error {
		rec := newEventRecord(ev)
		if format == output.FormatTable {
			printer.Printf("%s\n", rec)
			return nil
		}
		return printer.Print(rec)
	})
}

// watchChanges builds the registrations selected by the watch flags.
func watchChanges(reg *kevent.Registry) ([]kevent.Event, error) {
	var changes []kevent.Event
	for _, path := range watchPaths {
		ident, err := reg.WatchPath(path)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
		changes = append(changes, kevent.Event{
			Ident:  ident,
			Filter: kevent.FilterVnode,
			Flags:  kevent.EvAdd | kevent.EvClear,
			FFlags: kevent.NoteDelete | kevent.NoteWrite | kevent.NoteExtend | kevent.NoteAttrib | kevent.NoteRename,
			UData:  path,
		})
	}
	for _, pid := range watchPIDs {
		changes = append(changes, kevent.Event{
			Ident:  uint64(pid),
			Filter: kevent.FilterProc,
			Flags:  kevent.EvAdd,
			FFlags: kevent.NoteExit | kevent.NoteFork | kevent.NoteExec,
			UData:  fmt.Sprintf("pid %d", pid),
		})
	}
	for _, fd := range watchFDs {
		changes = append(changes, kevent.Event{
			Ident:  uint64(fd),
			Filter: kevent.FilterRead,
			Flags:  kevent.EvAdd | kevent.EvClear,
			UData:  fmt.Sprintf("fd %d", fd),
		})
	}
	if watchTimer > 0 {
		changes = append(changes, kevent.Event{
			Ident:  1,
			Filter: kevent.FilterTimer,
			Flags:  kevent.EvAdd,
			FFlags: kevent.NoteNSeconds,
			Data:   watchTimer.Nanoseconds(),
			UData:  "every " + watchTimer.String(),
		})
	}
	return changes, nil
}

// watch scans kq and hands every event to emit until count events were
// emitted (forever when count is zero) or ctx is done.
func watch(ctx context.Context, kq *kevent.Instance, count int, emit func(kevent.Event) error) error {
	seen := 0
	for count == 0 || seen < count {
		limit := 64
		if count > 0 {
			limit = count - seen
		}
		events, err := kq.Scan(ctx, limit, kevent.Forever)
		if err != nil {
			if errors.Is(err, kevent.ErrInterrupted) && ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, ev := range events {
			if err := emit(ev); err != nil {
				return err
			}
		}
		seen += len(events)
	}
	return nil
}
