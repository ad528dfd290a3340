// Package kevent implements an in-process event notification multiplexer
// modelled on kqueue(2).
//
// A Registry holds the filter implementations and the process-wide resources
// they share (the outstanding-timer ceiling, the process table, the
// descriptor and vnode watchers). An Instance, created from a Registry, owns
// a set of knotes: registrations binding one (ident, filter) pair to the
// instance. Sources activate knotes through Knote.Notify; Instance.Scan
// drains active knotes from the ready queue into events.
//
// Filter callbacks (attach, detach, event, touch) run without the instance
// lock. A knote being attached, detached, modified or delivered is marked
// in flux; anyone else finding it in flux waits and restarts its lookup, so
// at most one callback runs on a knote at a time.
package kevent

import "fmt"

// Filter identifies a filter kind. Built-in filters use the kqueue numbering.
type Filter int16

// Built-in filters.
const (
	FilterRead  Filter = -1
	FilterWrite Filter = -2
	FilterVnode Filter = -4
	FilterProc  Filter = -5
	FilterTimer Filter = -7
	FilterUser  Filter = -10

	// filterMin bounds the filter ids a Registry accepts.
	filterMin Filter = -32
)

// String returns the filter name.
func (f Filter) String() string {
	switch f {
	case FilterRead:
		return "read"
	case FilterWrite:
		return "write"
	case FilterVnode:
		return "vnode"
	case FilterProc:
		return "proc"
	case FilterTimer:
		return "timer"
	case FilterUser:
		return "user"
	default:
		return fmt.Sprintf("filter(%d)", int16(f))
	}
}

// Flags are the action and status flags of an Event.
type Flags uint16

// Action flags (input).
const (
	EvAdd      Flags = 0x0001 // add the registration, or modify an existing one
	EvDelete   Flags = 0x0002 // remove the registration
	EvEnable   Flags = 0x0004 // allow delivery
	EvDisable  Flags = 0x0008 // suppress delivery, keep the registration
	EvOneshot  Flags = 0x0010 // remove the registration after its first delivery
	EvClear    Flags = 0x0020 // reset the state after delivery (edge-triggered)
	EvReceipt  Flags = 0x0040 // always report the outcome of a change
	EvDispatch Flags = 0x0080 // disable after each delivery

	// evFlagChild marks a knote registered for a tracked child process.
	evFlagChild Flags = 0x2000
)

// Status flags (output).
const (
	EvDrop  Flags = 0x1000 // set by a filter whose source has vanished
	EvError Flags = 0x4000 // the change failed; Data holds the errno
	EvEOF   Flags = 0x8000 // the source reached end of file or exited
)

// actionFlags are stripped from a knote's stored flags.
const actionFlags = EvAdd | EvDelete | EvEnable | EvDisable | EvReceipt

// Filter-specific flags for FilterProc.
const (
	NoteExit     uint32 = 0x80000000 // process exited
	NoteFork     uint32 = 0x40000000 // process forked
	NoteExec     uint32 = 0x20000000 // process exec'd
	NoteTrack    uint32 = 0x00000001 // follow across forks
	NoteTrackErr uint32 = 0x00000002 // could not follow a child
	NoteChild    uint32 = 0x00000004 // this knote was registered for a tracked child

	noteProcEvents = NoteExit | NoteFork | NoteExec
)

// Filter-specific flags for FilterTimer. Milliseconds are the default unit.
const (
	NoteSeconds  uint32 = 0x00000001
	NoteMSeconds uint32 = 0x00000002
	NoteUSeconds uint32 = 0x00000004
	NoteNSeconds uint32 = 0x00000008

	noteTimerUnits = NoteSeconds | NoteMSeconds | NoteUSeconds | NoteNSeconds
)

// Filter-specific flags for FilterUser.
const (
	NoteFFNop      uint32 = 0x00000000 // ignore the input fflags
	NoteFFAnd      uint32 = 0x40000000 // AND the input fflags into the stored ones
	NoteFFOr       uint32 = 0x80000000 // OR the input fflags into the stored ones
	NoteFFCopy     uint32 = 0xc0000000 // replace the stored fflags
	NoteFFCtrlMask uint32 = 0xc0000000
	NoteFFlagsMask uint32 = 0x00ffffff
	NoteTrigger    uint32 = 0x01000000 // fire the event
)

// Filter-specific flags for FilterVnode.
const (
	NoteDelete uint32 = 0x00000001
	NoteWrite  uint32 = 0x00000002
	NoteExtend uint32 = 0x00000004
	NoteAttrib uint32 = 0x00000008
	NoteRename uint32 = 0x00000020
)

// NoteLowat sets the low-water mark of FilterRead to the registration's Data.
const NoteLowat uint32 = 0x00000001

// Event is both a change submitted to Register and a result of Scan.
type Event struct {
	Ident  uint64
	Filter Filter
	Flags  Flags
	FFlags uint32
	Data   int64
	UData  any
}

func (e Event) String() string {
	return fmt.Sprintf("{ident=%d filter=%s flags=%#x fflags=%#x data=%d}",
		e.Ident, e.Filter, uint16(e.Flags), e.FFlags, e.Data)
}
