package kevent

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// hintSample is the Notify hint sent by the readiness watcher.
const hintSample = 1

// fdWatcher samples descriptor readiness for FilterRead and FilterWrite
// knotes with poll(2). One goroutine serves every instance of a registry;
// it runs only while knotes are registered.
type fdWatcher struct {
	interval time.Duration

	mu      sync.Mutex
	knotes  map[*Knote]*fdState
	running bool
}

type fdState struct {
	fd     int
	events int16
	edge   bool
	last   int64
	hup    bool
}

func newFDWatcher(interval time.Duration) *fdWatcher {
	return &fdWatcher{
		interval: interval,
		knotes:   make(map[*Knote]*fdState),
	}
}

func (w *fdWatcher) add(kn *Knote, st *fdState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.knotes[kn] = st
	if !w.running {
		w.running = true
		go w.run()
	}
}

func (w *fdWatcher) remove(kn *Knote) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.knotes, kn)
}

func (w *fdWatcher) run() {
	ms := int(w.interval / time.Millisecond)
	if ms < 1 {
		ms = 1
	}

	var (
		kns []*Knote
		sts []*fdState
		fds []unix.PollFd
	)
	for {
		kns, sts, fds = kns[:0], sts[:0], fds[:0]
		w.mu.Lock()
		if len(w.knotes) == 0 {
			w.running = false
			w.mu.Unlock()
			return
		}
		for kn, st := range w.knotes {
			kns = append(kns, kn)
			sts = append(sts, st)
			fds = append(fds, unix.PollFd{Fd: int32(st.fd), Events: st.events})
		}
		w.mu.Unlock()

		n, err := unix.Poll(fds, ms)
		if err != nil && !errors.Is(err, unix.EINTR) {
			time.Sleep(w.interval)
			continue
		}
		for i, kn := range kns {
			if fds[i].Revents != 0 || sts[i].edge {
				kn.Notify(hintSample)
			}
		}
		if n > 0 {
			// Level-triggered readiness stays set until the reader drains it.
			time.Sleep(w.interval)
		}
	}
}

func attachFD(w *fdWatcher, kn *Knote, events int16) error {
	fd := int(kn.ev.Ident)
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return fmt.Errorf("%w: descriptor %d: %w", ErrBadDescriptor, fd, err)
	}
	st := &fdState{fd: fd, events: events, edge: kn.ev.Flags&EvClear != 0}
	kn.hook = st
	w.add(kn, st)
	return nil
}

// pollNow returns the current revents of st.fd without blocking.
func pollNow(st *fdState) (int16, bool) {
	fds := []unix.PollFd{{Fd: int32(st.fd), Events: st.events}}
	for {
		_, err := unix.Poll(fds, 0)
		if err == nil {
			return fds[0].Revents, true
		}
		if !errors.Is(err, unix.EINTR) {
			return 0, false
		}
	}
}

// readFilter implements FilterRead. Data is the number of bytes that can
// be read without blocking.
type readFilter struct {
	w *fdWatcher
}

func (*readFilter) IsFD() bool { return true }

func (f *readFilter) Attach(kn *Knote) error {
	return attachFD(f.w, kn, unix.POLLIN)
}

func (f *readFilter) Detach(kn *Knote) {
	f.w.remove(kn)
}

func (*readFilter) Event(kn *Knote, hint int64) bool {
	st := kn.hook.(*fdState)
	revents, ok := pollNow(st)
	if !ok {
		return false
	}
	if revents&unix.POLLNVAL != 0 {
		kn.ev.Flags |= EvDrop
		return true
	}

	var avail int64
	if revents&(unix.POLLIN|unix.POLLHUP) != 0 {
		avail = readableBytes(st.fd)
	}
	kn.ev.Data = avail

	hup := revents&(unix.POLLHUP|unix.POLLERR) != 0
	if hup {
		kn.ev.Flags |= EvEOF
	} else {
		kn.ev.Flags &^= EvEOF
	}

	ready := hup || revents&unix.POLLIN != 0
	if ready && !hup && kn.sfflags&NoteLowat != 0 && avail < kn.sdata {
		ready = false
	}

	if hint == hintSample && st.edge {
		if !ready {
			st.last, st.hup = 0, false
			return false
		}
		changed := avail != st.last || (hup && !st.hup)
		st.last, st.hup = avail, hup
		return changed
	}
	if !ready {
		st.last = 0
	}
	return ready
}

// writeFilter implements FilterWrite. Data is always zero: poll reports
// writability but not buffer space.
type writeFilter struct {
	w *fdWatcher
}

func (*writeFilter) IsFD() bool { return true }

func (f *writeFilter) Attach(kn *Knote) error {
	return attachFD(f.w, kn, unix.POLLOUT)
}

func (f *writeFilter) Detach(kn *Knote) {
	f.w.remove(kn)
}

func (*writeFilter) Event(kn *Knote, hint int64) bool {
	st := kn.hook.(*fdState)
	revents, ok := pollNow(st)
	if !ok {
		return false
	}
	if revents&unix.POLLNVAL != 0 {
		kn.ev.Flags |= EvDrop
		return true
	}
	kn.ev.Data = 0

	hup := revents&(unix.POLLHUP|unix.POLLERR) != 0
	if hup {
		kn.ev.Flags |= EvEOF
	}
	ready := hup || revents&unix.POLLOUT != 0

	if hint == hintSample && st.edge {
		was := st.last != 0
		st.last = 0
		if ready {
			st.last = 1
		}
		return ready && !was
	}
	return ready
}

// readableBytes returns the bytes that can be read from fd without
// blocking, or 0 when the descriptor does not report it.
func readableBytes(fd int) int64 {
	n, err := unix.IoctlGetInt(fd, ioctlReadable)
	if err != nil {
		return 0
	}
	return int64(n)
}
