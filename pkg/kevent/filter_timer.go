package kevent

import (
	"fmt"
	"math"
	"math/bits"
	"sync"
	"time"

	"github.com/marmos91/wcstore/internal/logger"
)

// timerFilter implements FilterTimer. Data is the interval, in the unit
// selected by fflags (milliseconds by default); delivered Data counts the
// expirations since the last delivery.
type timerFilter struct {
	reg *Registry
}

type timerState struct {
	kn *Knote

	mu       sync.Mutex
	t        *time.Timer
	interval time.Duration
	oneshot  bool
	gen      uint64
	stopped  bool
	firing   sync.WaitGroup
}

func (*timerFilter) IsFD() bool { return false }

func timerInterval(data int64, fflags uint32, oneshot bool) (time.Duration, error) {
	if data < 0 {
		return 0, fmt.Errorf("%w: negative timer interval %d", ErrInvalid, data)
	}
	units := fflags & noteTimerUnits
	if bits.OnesCount32(units) > 1 {
		return 0, fmt.Errorf("%w: conflicting timer units %#x", ErrInvalid, units)
	}

	unit := time.Millisecond
	switch units {
	case NoteSeconds:
		unit = time.Second
	case NoteUSeconds:
		unit = time.Microsecond
	case NoteNSeconds:
		unit = time.Nanosecond
	}

	if data == 0 && !oneshot {
		data = 1
	}
	if data > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: timer interval %d overflows", ErrInvalid, data)
	}
	return time.Duration(data) * unit, nil
}

func (f *timerFilter) Attach(kn *Knote) error {
	oneshot := kn.ev.Flags&EvOneshot != 0
	interval, err := timerInterval(kn.sdata, kn.sfflags, oneshot)
	if err != nil {
		return err
	}
	if err := f.reg.reserveTimer(); err != nil {
		return err
	}

	kn.ev.Flags |= EvClear
	st := &timerState{kn: kn, interval: interval, oneshot: oneshot}
	kn.hook = st

	st.mu.Lock()
	st.arm()
	st.mu.Unlock()

	logger.Debug("kevent timer armed", logger.KeyInstance, kn.kq.id,
		logger.KeyIdent, kn.ev.Ident, logger.KeyInterval, interval)
	return nil
}

// arm schedules the next expiration. st.mu must be held.
func (st *timerState) arm() {
	gen := st.gen
	st.t = time.AfterFunc(st.interval, func() { st.fire(gen) })
}

func (st *timerState) fire(gen uint64) {
	st.mu.Lock()
	if st.stopped || gen != st.gen {
		st.mu.Unlock()
		return
	}
	st.firing.Add(1)
	st.mu.Unlock()
	defer st.firing.Done()

	st.kn.Notify(1)
	if st.oneshot {
		return
	}

	st.mu.Lock()
	if !st.stopped && gen == st.gen {
		st.t.Reset(st.interval)
	}
	st.mu.Unlock()
}

func (f *timerFilter) Detach(kn *Knote) {
	st := kn.hook.(*timerState)
	st.mu.Lock()
	st.stopped = true
	st.t.Stop()
	st.mu.Unlock()

	st.firing.Wait()
	f.reg.releaseTimer()
}

func (*timerFilter) Event(kn *Knote, hint int64) bool {
	kn.ev.Data += hint
	return kn.ev.Data > 0
}

// Touch restarts the timer with the new interval on an EvAdd modify.
// Enable and disable alone leave the running timer and its pending count
// untouched.
func (*timerFilter) Touch(kn *Knote, ev *Event, op TouchOp) error {
	switch op {
	case TouchRegister:
		if ev.Flags&EvAdd == 0 {
			return nil
		}
		st := kn.hook.(*timerState)
		interval, err := timerInterval(ev.Data, ev.FFlags, st.oneshot)
		if err != nil {
			logger.Debug("kevent timer modify rejected", logger.KeyIdent, kn.ev.Ident, logger.Err(err))
			return err
		}
		kn.sfflags, kn.sdata = ev.FFlags, ev.Data
		kn.ev.Data = 0

		st.mu.Lock()
		st.t.Stop()
		st.gen++
		st.interval = interval
		st.arm()
		st.mu.Unlock()

	case TouchProcess:
		*ev = kn.ev
		if kn.ev.Flags&EvClear != 0 {
			kn.ev.Data, kn.ev.FFlags = 0, 0
		}
	}
	return nil
}
