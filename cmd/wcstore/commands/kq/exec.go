package kq

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/pkg/kevent"
)

var execCmd = &cobra.Command{
	Use:   "exec -- COMMAND [ARGS...]",
	Short: "Run a command and report its process events",
	Long: `Run COMMAND, watch it with the process filter and report its exit
status. The exit status of COMMAND becomes an error when it is not zero.

Examples:
  wcstore kq exec -- make test
  wcstore kq exec -- sh -c 'sleep 1; exit 3'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdutil.SignalContext()
		defer cancel()

		reg, err := newRegistry()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		status, err := execAndWatch(ctx, reg, args, out, cmd.ErrOrStderr(), func(ev kevent.Event) {
			_, _ = fmt.Fprintf(out, "%s\n", newEventRecord(ev))
		})
		if err != nil {
			return err
		}
		if status != 0 {
			return fmt.Errorf("%s exited with status %d", args[0], status)
		}
		return nil
	},
}

// execAndWatch starts argv and reports its process events to notify until
// it exits. It returns the exit status.
func execAndWatch(ctx context.Context, reg *kevent.Registry, argv []string, stdout, stderr io.Writer, notify func(kevent.Event)) (int, error) {
	kq := reg.NewInstance()
	defer func() { _ = kq.Close() }()

	c := exec.Command(argv[0], argv[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = stdout
	c.Stderr = stderr
	if err := c.Start(); err != nil {
		return -1, err
	}
	pid := c.Process.Pid

	// Register before reaping so the exit cannot be missed.
	err := kq.Register(kevent.Event{
		Ident:  uint64(pid),
		Filter: kevent.FilterProc,
		Flags:  kevent.EvAdd,
		FFlags: kevent.NoteExit | kevent.NoteFork | kevent.NoteExec,
		UData:  argv[0],
	})
	if err != nil {
		_ = c.Process.Kill()
		_ = c.Wait()
		return -1, fmt.Errorf("watch pid %d: %w", pid, err)
	}

	go func() {
		if err := reg.Processes().Wait(c); err != nil {
			logger.Debug("child exited", logger.KeyPID, pid, logger.Err(err))
		}
	}()

	for {
		events, err := kq.Scan(ctx, 8, kevent.Forever)
		if err != nil {
			_ = c.Process.Kill()
			return -1, err
		}
		for _, ev := range events {
			notify(ev)
			if ev.Flags&kevent.EvEOF != 0 {
				return int(ev.Data), nil
			}
		}
	}
}
