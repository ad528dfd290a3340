// Package kq implements the event multiplexer subcommands.
package kq

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/wcstore/cmd/wcstore/cmdutil"
	"github.com/marmos91/wcstore/pkg/config"
	"github.com/marmos91/wcstore/pkg/kevent"
)

// Cmd is the kq subcommand.
var Cmd = &cobra.Command{
	Use:   "kq",
	Short: "Watch timers, processes, descriptors and paths",
	Long: `Drive the event multiplexer from the command line.

Subcommands:
  watch  Register filters and print events as they arrive
  exec   Run a command and report its process events`,
}

func init() {
	Cmd.AddCommand(watchCmd)
	Cmd.AddCommand(execCmd)
}

// newRegistry builds the filter registry from the kevent section of the
// configuration.
func newRegistry() (*kevent.Registry, error) {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return nil, err
	}
	return config.CreateKeventRegistry(cfg.Kevent, nil), nil
}

// eventRecord is the printable form of an event.
type eventRecord struct {
	Filter string   `json:"filter" yaml:"filter"`
	Ident  uint64   `json:"ident" yaml:"ident"`
	Label  string   `json:"label,omitempty" yaml:"label,omitempty"`
	Notes  []string `json:"notes,omitempty" yaml:"notes,omitempty"`
	Flags  []string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Data   int64    `json:"data" yaml:"data"`
}

func newEventRecord(ev kevent.Event) eventRecord {
	rec := eventRecord{
		Filter: ev.Filter.String(),
		Ident:  ev.Ident,
		Notes:  noteNames(ev.Filter, ev.FFlags),
		Flags:  flagNames(ev.Flags),
		Data:   ev.Data,
	}
	if label, ok := ev.UData.(string); ok {
		rec.Label = label
	}
	return rec
}

func (r eventRecord) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s ident=%d", r.Filter, r.Ident)
	if r.Label != "" {
		fmt.Fprintf(&b, " (%s)", r.Label)
	}
	if len(r.Notes) > 0 {
		fmt.Fprintf(&b, " notes=%s", strings.Join(r.Notes, "|"))
	}
	if len(r.Flags) > 0 {
		fmt.Fprintf(&b, " flags=%s", strings.Join(r.Flags, "|"))
	}
	fmt.Fprintf(&b, " data=%d", r.Data)
	return b.String()
}

type named struct {
	bit  uint32
	name string
}

var vnodeNotes = []named{
	{kevent.NoteDelete, "delete"},
	{kevent.NoteWrite, "write"},
	{kevent.NoteExtend, "extend"},
	{kevent.NoteAttrib, "attrib"},
	{kevent.NoteRename, "rename"},
}

var procNotes = []named{
	{kevent.NoteExit, "exit"},
	{kevent.NoteFork, "fork"},
	{kevent.NoteExec, "exec"},
	{kevent.NoteTrackErr, "trackerr"},
	{kevent.NoteChild, "child"},
}

var eventFlags = []named{
	{uint32(kevent.EvOneshot), "oneshot"},
	{uint32(kevent.EvClear), "clear"},
	{uint32(kevent.EvDispatch), "dispatch"},
	{uint32(kevent.EvDrop), "drop"},
	{uint32(kevent.EvError), "error"},
	{uint32(kevent.EvEOF), "eof"},
}

func names(set []named, bits uint32) []string {
	var out []string
	for _, n := range set {
		if bits&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func noteNames(f kevent.Filter, fflags uint32) []string {
	switch f {
	case kevent.FilterVnode:
		return names(vnodeNotes, fflags)
	case kevent.FilterProc:
		return names(procNotes, fflags)
	default:
		return nil
	}
}

func flagNames(f kevent.Flags) []string {
	return names(eventFlags, uint32(f))
}
