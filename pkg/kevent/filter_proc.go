package kevent

import (
	"errors"
	"fmt"
	"math"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/wcstore/internal/logger"
)

// exitedCacheSize bounds how many exit statuses the table remembers for
// registrations that arrive after the process is gone.
const exitedCacheSize = 128

// ProcessTable tracks the processes FilterProc knotes watch. Exits are
// learned from Wait for children the caller owns, and by probing every
// other watched pid at a fixed interval.
type ProcessTable struct {
	interval time.Duration

	mu      sync.Mutex
	live    map[int][]*Knote
	owned   map[int]struct{}
	exited  map[int]int
	order   []int
	polling bool
}

func newProcessTable(interval time.Duration) *ProcessTable {
	return &ProcessTable{
		interval: interval,
		live:     make(map[int][]*Knote),
		owned:    make(map[int]struct{}),
		exited:   make(map[int]int),
	}
}

// Wait waits for a started command and reports its exit to every knote
// watching it. The exit status is remembered, so a NoteExit registration
// made after Wait returns still sees it.
func (t *ProcessTable) Wait(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("kevent: command not started")
	}
	pid := cmd.Process.Pid

	t.mu.Lock()
	t.owned[pid] = struct{}{}
	t.mu.Unlock()

	err := cmd.Wait()
	status := -1
	if cmd.ProcessState != nil {
		status = cmd.ProcessState.ExitCode()
	}
	t.NotifyExit(pid, status)
	return err
}

// NotifyExit reports that pid exited with status, -1 when unknown.
func (t *ProcessTable) NotifyExit(pid, status int) {
	t.mu.Lock()
	kns := t.live[pid]
	delete(t.live, pid)
	delete(t.owned, pid)
	t.rememberLocked(pid, status)
	t.mu.Unlock()

	logger.Debug("kevent process exited", logger.KeyPID, pid, "exit_status", status, "watchers", len(kns))
	hint := procHint(NoteExit, status)
	for _, kn := range kns {
		kn.Notify(hint)
	}
}

// NotifyFork reports that parent forked child. Knotes watching parent
// with NoteTrack get a child registration in their own instance; when that
// fails the parent knote reports NoteTrackErr instead.
func (t *ProcessTable) NotifyFork(parent, child int) {
	for _, kn := range t.watchers(parent) {
		kn.Notify(procHint(NoteFork, 0))

		kn.mu.Lock()
		track := !kn.detaching && kn.sfflags&NoteTrack != 0
		sfflags, udata := kn.sfflags, kn.ev.UData
		kn.mu.Unlock()
		if !track {
			continue
		}

		err := kn.kq.Register(Event{
			Ident:  uint64(child),
			Filter: FilterProc,
			Flags:  EvAdd | EvEnable | evFlagChild,
			FFlags: sfflags,
			Data:   int64(parent),
			UData:  udata,
		})
		if err != nil {
			logger.Debug("kevent fork tracking failed", logger.KeyPID, child, logger.Err(err))
			kn.Notify(procHint(NoteFork|NoteTrackErr, 0))
		}
	}
}

// NotifyExec reports that pid replaced its program image.
func (t *ProcessTable) NotifyExec(pid int) {
	for _, kn := range t.watchers(pid) {
		kn.Notify(procHint(NoteExec, 0))
	}
}

// Exited returns the remembered exit status of pid.
func (t *ProcessTable) Exited(pid int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.exited[pid]
	return status, ok
}

func (t *ProcessTable) watchers(pid int) []*Knote {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Knote(nil), t.live[pid]...)
}

func (t *ProcessTable) rememberLocked(pid, status int) {
	if _, ok := t.exited[pid]; !ok {
		t.order = append(t.order, pid)
	}
	t.exited[pid] = status
	for len(t.order) > exitedCacheSize {
		delete(t.exited, t.order[0])
		t.order = t.order[1:]
	}
}

// aliveLocked reports whether pid is running or not yet reaped.
func (t *ProcessTable) aliveLocked(pid int) bool {
	if _, ok := t.owned[pid]; ok {
		return true
	}
	if _, ok := t.exited[pid]; ok {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (t *ProcessTable) startPollerLocked() {
	if t.polling {
		return
	}
	t.polling = true
	go t.poll()
}

func (t *ProcessTable) poll() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		if len(t.live) == 0 {
			t.polling = false
			t.mu.Unlock()
			return
		}
		pids := make([]int, 0, len(t.live))
		for pid := range t.live {
			if _, ok := t.owned[pid]; !ok {
				pids = append(pids, pid)
			}
		}
		t.mu.Unlock()

		for _, pid := range pids {
			if errors.Is(unix.Kill(pid, 0), unix.ESRCH) {
				t.lost(pid)
			}
		}
	}
}

// lost reports the exit of a probed pid unless Wait got to it first.
func (t *ProcessTable) lost(pid int) {
	t.mu.Lock()
	_, owned := t.owned[pid]
	_, reaped := t.exited[pid]
	t.mu.Unlock()
	if !owned && !reaped {
		t.NotifyExit(pid, -1)
	}
}

// procHint packs a NOTE_* event and an exit status into a Notify hint.
func procHint(event uint32, status int) int64 {
	return int64(event) | int64(int32(status))<<32
}

func procHintEvent(hint int64) uint32 { return uint32(hint) }

func procHintStatus(hint int64) int { return int(int32(hint >> 32)) }

// procFilter implements FilterProc.
type procFilter struct {
	table *ProcessTable
}

func (*procFilter) IsFD() bool { return false }

func (f *procFilter) Attach(kn *Knote) error {
	if kn.ev.Ident == 0 || kn.ev.Ident > math.MaxInt32 {
		return fmt.Errorf("%w: pid %d", ErrNoProcess, kn.ev.Ident)
	}
	pid := int(kn.ev.Ident)

	if kn.ev.Flags&evFlagChild != 0 {
		kn.ev.Flags &^= evFlagChild
		kn.ev.FFlags = NoteChild
		kn.ev.Data = kn.sdata
	}

	t := f.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.aliveLocked(pid) {
		t.live[pid] = append(t.live[pid], kn)
		if _, ok := t.owned[pid]; !ok {
			t.startPollerLocked()
		}
		return nil
	}
	if status, ok := t.exited[pid]; ok && kn.sfflags&NoteExit != 0 {
		kn.ev.FFlags |= NoteExit
		kn.ev.Flags |= EvEOF | EvOneshot
		kn.ev.Data = int64(status)
		return nil
	}
	return fmt.Errorf("%w: pid %d", ErrNoProcess, pid)
}

func (f *procFilter) Detach(kn *Knote) {
	t := f.table
	pid := int(kn.ev.Ident)
	t.mu.Lock()
	defer t.mu.Unlock()
	if list := without(t.live[pid], kn); len(list) > 0 {
		t.live[pid] = list
	} else {
		delete(t.live, pid)
	}
}

func (*procFilter) Event(kn *Knote, hint int64) bool {
	if hint == 0 {
		return kn.ev.FFlags != 0
	}

	event := procHintEvent(hint)
	if event&NoteTrackErr != 0 {
		kn.ev.FFlags |= NoteTrackErr
	}
	if kn.sfflags&event&noteProcEvents != 0 {
		kn.ev.FFlags |= event & noteProcEvents & kn.sfflags
	}
	if event&NoteExit != 0 {
		kn.ev.Flags |= EvEOF | EvOneshot
		kn.ev.Data = int64(procHintStatus(hint))
		if kn.ev.FFlags == 0 {
			kn.ev.Flags |= EvDrop
		}
		return true
	}
	return kn.ev.FFlags != 0
}
