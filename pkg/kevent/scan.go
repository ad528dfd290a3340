package kevent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/pkg/metrics"
)

// Forever makes Scan block until an event arrives.
const Forever time.Duration = -1

// Scan returns up to max ready events. With no event ready it blocks for
// timeout: zero polls, Forever waits indefinitely. The deadline is fixed
// on entry. A cancelled ctx interrupts the wait; Scan then returns
// ErrInterrupted if no event was collected.
func (kq *Instance) Scan(ctx context.Context, max int, timeout time.Duration) ([]Event, error) {
	if max <= 0 {
		return nil, nil
	}
	start := time.Now()
	if err := kq.enter(); err != nil {
		return nil, err
	}
	defer kq.leave()

	var deadline time.Time
	if timeout > 0 {
		deadline = start.Add(timeout)
		t := time.AfterFunc(timeout, kq.wakeSleepers)
		defer t.Stop()
	}
	stop := context.AfterFunc(ctx, kq.wakeSleepers)
	defer stop()

	out := make([]Event, 0, min(max, 64))
	marker := &Knote{status: statusMarker}

	kq.mu.Lock()
	var err error
	for {
		if kq.closing {
			if len(out) == 0 {
				err = ErrClosed
			}
			break
		}
		if kq.queued > 0 {
			kq.queue.pushBack(marker)
			kq.drain(marker, max, &out)
			if len(out) > 0 {
				break
			}
			if kq.queue.front() != nil {
				continue
			}
		}

		if timeout == 0 {
			break
		}
		if cerr := ctx.Err(); cerr != nil {
			err = fmt.Errorf("%w: %w", ErrInterrupted, cerr)
			break
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			break
		}
		if kq.queued > 0 {
			// Every queued knote is being delivered by another scanner.
			kq.fluxWait()
		} else {
			kq.sleep.Wait()
		}
	}
	kq.delivered += uint64(len(out))
	kq.mu.Unlock()

	metrics.ObserveScan(kq.reg.metrics, len(out), time.Since(start))
	if errors.Is(err, ErrInterrupted) {
		logger.DebugCtx(logger.WithContext(ctx, logger.ForInstance("scan", kq.id)),
			"kevent scan interrupted", logger.KeyDurationMs, logger.Duration(start), logger.Err(err))
	}
	return out, err
}

// drain delivers knotes from the head of the ready queue until marker is
// reached or max events were collected. kq.mu must be held; drain releases
// it around filter callbacks.
func (kq *Instance) drain(marker *Knote, max int, out *[]Event) {
	defer func() {
		kq.queue.remove(marker)
		kq.fluxWakeup()
	}()

	for len(*out) < max {
		kn := kq.queue.front()
		if kn == nil {
			return
		}
		if (kn.isMarker() && kn != marker) || kn.inFlux() {
			kq.fluxWait()
			continue
		}
		kq.queue.remove(kn)
		if kn == marker {
			return
		}
		if kn.status&statusDisabled != 0 {
			kn.status &^= statusQueued
			kq.queued--
			continue
		}

		kn.status |= statusInflux | statusScan
		kq.mu.Unlock()

		ev, delivered := kq.deliver(kn)

		kq.mu.Lock()
		if delivered {
			*out = append(*out, ev)
		}
	}
}

// deliver re-tests one in-flux knote taken off the ready queue and builds
// its event. No locks may be held.
func (kq *Instance) deliver(kn *Knote) (Event, bool) {
	kn.mu.Lock()
	active := false
	if kn.ev.Flags&EvDrop == 0 {
		active = kn.fop.Event(kn, 0)
	}
	if kn.ev.Flags&EvDrop != 0 {
		kn.mu.Unlock()
		kq.detachAndDrop(kn)
		return Event{}, false
	}
	if !active {
		kq.mu.Lock()
		kn.status &^= statusActive | statusQueued | statusInflux | statusScan
		kq.queued--
		kq.fluxWakeup()
		kq.mu.Unlock()
		kn.mu.Unlock()
		return Event{}, false
	}

	var ev Event
	clear := kn.ev.Flags&EvClear != 0
	if t, ok := kn.fop.(Toucher); ok {
		_ = t.Touch(kn, &ev, TouchProcess)
	} else {
		ev = kn.ev
		if clear {
			kn.ev.Data, kn.ev.FFlags = 0, 0
		}
	}

	if kn.ev.Flags&EvOneshot != 0 {
		kn.mu.Unlock()
		kq.detachAndDrop(kn)
		return ev, true
	}

	kq.mu.Lock()
	dispatch := kn.ev.Flags&EvDispatch != 0
	if dispatch {
		kn.status |= statusDisabled
	}
	if clear || dispatch {
		kn.status &^= statusQueued | statusActive
		kq.queued--
	} else {
		// Level-triggered: queue again behind this pass's marker.
		kq.queue.pushBack(kn)
	}
	kn.status &^= statusInflux | statusScan
	kq.fluxWakeup()
	kq.mu.Unlock()
	kn.mu.Unlock()
	return ev, true
}
