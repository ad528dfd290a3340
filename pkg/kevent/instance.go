package kevent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/pkg/metrics"
)

// Instance is one multiplexer: a set of knotes and their ready queue.
type Instance struct {
	id  uint64
	reg *Registry

	mu    sync.Mutex
	sleep *sync.Cond // scanners waiting for events
	flux  *sync.Cond // waiters for a knote to leave flux, and Close

	index   sourceIndex
	queue   readyQueue
	queued  int // knotes with statusQueued
	knotes  int
	refs    int // registrations and scans in progress
	closing bool
	closed  bool

	delivered uint64
	fluxWaits uint64
}

// NewInstance creates an empty multiplexer.
func (r *Registry) NewInstance() *Instance {
	kq := &Instance{
		id:  r.nextID.Add(1),
		reg: r,
	}
	kq.sleep = sync.NewCond(&kq.mu)
	kq.flux = sync.NewCond(&kq.mu)
	return kq
}

// ID identifies the instance in logs.
func (kq *Instance) ID() uint64 {
	return kq.id
}

// enter takes a reference for the duration of a register or scan.
func (kq *Instance) enter() error {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	if kq.closing {
		return ErrClosed
	}
	kq.refs++
	return nil
}

func (kq *Instance) leave() {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	kq.refs--
	if kq.closing && kq.refs == 0 {
		kq.flux.Broadcast()
	}
}

// fluxWait blocks until some knote leaves flux. Callers must restart their
// lookup afterwards. kq.mu must be held.
func (kq *Instance) fluxWait() {
	kq.fluxWaits++
	metrics.RecordFluxWait(kq.reg.metrics)
	kq.flux.Wait()
}

func (kq *Instance) fluxWakeup() {
	kq.flux.Broadcast()
}

func (kq *Instance) wakeSleepers() {
	kq.mu.Lock()
	kq.sleep.Broadcast()
	kq.flux.Broadcast()
	kq.mu.Unlock()
}

// Register applies one change: add, modify, enable, disable or delete the
// registration of (ev.Ident, ev.Filter).
func (kq *Instance) Register(ev Event) (err error) {
	action := registerAction(ev.Flags)
	defer func() {
		metrics.RecordRegistration(kq.reg.metrics, ev.Filter.String(), action, err)
		if err != nil {
			logger.Debug("kevent register failed", logger.KeyInstance, kq.id,
				logger.KeyIdent, ev.Ident, logger.KeyFilter, ev.Filter.String(),
				logger.KeyFlags, uint16(ev.Flags), logger.Err(err))
		}
	}()

	if err := kq.enter(); err != nil {
		return err
	}
	defer kq.leave()

	fop, err := kq.reg.acquire(ev.Filter)
	if err != nil {
		return err
	}
	// The reference moves to a newly created knote; otherwise drop it.
	keepRef := false
	defer func() {
		if !keepRef {
			kq.reg.release(ev.Filter)
		}
	}()

	isFD := fop.IsFD()
	if isFD && ev.Ident >= maxFD {
		return fmt.Errorf("%w: descriptor %d", ErrBadDescriptor, ev.Ident)
	}

	kq.mu.Lock()
	var kn *Knote
	for {
		kn = kq.index.lookup(ev.Ident, ev.Filter, isFD)
		if kn == nil || !kn.inFlux() {
			break
		}
		kq.fluxWait()
	}

	if kn == nil {
		if ev.Flags&EvAdd == 0 {
			kq.mu.Unlock()
			return fmt.Errorf("%w: ident %d filter %s", ErrNoEntry, ev.Ident, ev.Filter)
		}
		kn = &Knote{
			kq:      kq,
			fop:     fop,
			ev:      ev,
			sfflags: ev.FFlags,
			sdata:   ev.Data,
			status:  statusInflux | statusDetached,
		}
		kn.ev.FFlags, kn.ev.Data = 0, 0
		kn.ev.Flags &^= actionFlags
		if ev.Flags&EvDisable != 0 {
			kn.status |= statusDisabled
		}
		kq.index.insert(kn, isFD)
		kq.knotes++
		keepRef = true
		kq.mu.Unlock()

		kn.mu.Lock()
		err := fop.Attach(kn)
		if err != nil {
			kn.detaching = true
			kn.mu.Unlock()
			kq.mu.Lock()
			kq.drop(kn)
			kq.mu.Unlock()
			return err
		}
		kq.mu.Lock()
		kn.status &^= statusDetached
		kq.mu.Unlock()
		kq.settle(kn)
		return nil
	}

	if ev.Flags&EvDelete != 0 {
		kn.status |= statusInflux
		kq.mu.Unlock()
		kq.detachAndDrop(kn)
		return nil
	}

	// Modify.
	kn.status |= statusInflux | statusScan
	kq.mu.Unlock()

	kn.mu.Lock()
	if t, ok := fop.(Toucher); ok {
		err = t.Touch(kn, &ev, TouchRegister)
	} else {
		kn.sfflags = ev.FFlags
		kn.sdata = ev.Data
	}
	if err == nil {
		kn.ev.UData = ev.UData
		kq.mu.Lock()
		if ev.Flags&EvEnable != 0 {
			kn.status &^= statusDisabled
		} else if ev.Flags&EvDisable != 0 {
			kn.status |= statusDisabled
		}
		kq.mu.Unlock()
	}
	kq.settle(kn)
	return err
}

// settle re-tests a knote at the end of a registration, queues it when
// active, and takes it out of flux. The source lock must be held; settle
// releases it.
func (kq *Instance) settle(kn *Knote) {
	kq.mu.Lock()
	disabled := kn.status&statusDisabled != 0
	kq.mu.Unlock()

	event := false
	if !disabled {
		event = kn.fop.Event(kn, 0)
	}

	kq.mu.Lock()
	if event {
		kn.status |= statusActive
	}
	if kn.status&(statusActive|statusDisabled|statusQueued) == statusActive {
		kq.enqueue(kn)
	}
	kn.status &^= statusInflux | statusScan
	kq.fluxWakeup()
	kq.mu.Unlock()
	kn.mu.Unlock()
}

func registerAction(f Flags) string {
	switch {
	case f&EvDelete != 0:
		return "delete"
	case f&EvAdd != 0:
		return "add"
	default:
		return "modify"
	}
}

// enqueue puts kn on the ready queue. kq.mu must be held.
func (kq *Instance) enqueue(kn *Knote) {
	kq.queue.pushBack(kn)
	kn.status |= statusQueued
	kq.queued++
	kq.sleep.Broadcast()
}

// activate marks kn active on behalf of its source.
func (kq *Instance) activate(kn *Knote) {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	if kn.status&statusDetached != 0 {
		return
	}
	kn.status |= statusActive
	if kn.status&(statusQueued|statusDisabled) == 0 {
		kq.enqueue(kn)
	}
}

// detachAndDrop detaches an in-flux knote from its source and frees it.
// No locks may be held.
func (kq *Instance) detachAndDrop(kn *Knote) {
	kn.mu.Lock()
	kn.detaching = true
	kn.mu.Unlock()

	kq.mu.Lock()
	attached := kn.status&statusDetached == 0
	kq.mu.Unlock()
	if attached {
		kn.fop.Detach(kn)
	}

	kq.mu.Lock()
	kq.drop(kn)
	kq.mu.Unlock()
}

// drop unlinks a detached knote from the instance. kq.mu must be held.
func (kq *Instance) drop(kn *Knote) {
	kq.index.remove(kn, kn.fop.IsFD())
	if kn.status&statusQueued != 0 {
		kq.queue.remove(kn)
		kq.queued--
	}
	kn.status = statusDetached
	kq.knotes--
	kq.reg.release(kn.ev.Filter)
	kq.fluxWakeup()
}

// Close detaches every knote and releases the instance. Blocked scanners
// return ErrClosed; Close waits for in-progress registrations and scans.
func (kq *Instance) Close() error {
	kq.mu.Lock()
	if kq.closing {
		kq.mu.Unlock()
		return ErrClosed
	}
	kq.closing = true
	kq.sleep.Broadcast()
	for kq.refs > 0 {
		kq.flux.Wait()
	}

	for _, kn := range kq.index.all() {
		for kn.inFlux() {
			kq.fluxWait()
		}
		if kn.status == statusDetached {
			continue
		}
		kn.status |= statusInflux
		kq.mu.Unlock()
		kq.detachAndDrop(kn)
		kq.mu.Lock()
	}
	kq.closed = true
	kq.mu.Unlock()

	logger.Debug("kevent instance closed", logger.KeyInstance, kq.id)
	return nil
}

// Stats describe an instance at one point in time.
type Stats struct {
	ID        uint64
	Knotes    int
	Queued    int
	InFlight  int
	Delivered uint64
	FluxWaits uint64
	Closed    bool
}

// Stats returns a snapshot of the instance counters.
func (kq *Instance) Stats() Stats {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	return Stats{
		ID:        kq.id,
		Knotes:    kq.knotes,
		Queued:    kq.queued,
		InFlight:  kq.refs,
		Delivered: kq.delivered,
		FluxWaits: kq.fluxWaits,
		Closed:    kq.closed,
	}
}

// Trigger fires the FilterUser registration ident, applying fflags with
// the NoteFF* control bits.
func (kq *Instance) Trigger(ident uint64, fflags uint32) error {
	return kq.Register(Event{Ident: ident, Filter: FilterUser, FFlags: NoteTrigger | fflags})
}

// NotifyFork reports that parent forked child to every FilterProc knote
// watching parent, in any instance.
func (kq *Instance) NotifyFork(parent, child int) {
	kq.reg.procs.NotifyFork(parent, child)
}

// NotifyExec reports that pid replaced its image.
func (kq *Instance) NotifyExec(pid int) {
	kq.reg.procs.NotifyExec(pid)
}

// Kevent applies changes and then scans into events, the way kevent(2)
// does. A change that fails, or any change flagged EvReceipt, produces an
// EvError event (Data is the errno, zero on success) while room remains in
// events; once events is full the failing change's error is returned. When
// any such event was produced no scan takes place.
func (kq *Instance) Kevent(ctx context.Context, changes []Event, events []Event, timeout time.Duration) (int, error) {
	n := 0
	for _, change := range changes {
		err := kq.Register(change)
		if err == nil && change.Flags&EvReceipt == 0 {
			continue
		}
		if errors.Is(err, ErrClosed) {
			return n, err
		}
		if n >= len(events) {
			if err != nil {
				return n, err
			}
			continue
		}
		receipt := change
		receipt.Flags = EvError
		receipt.Data = int64(Errno(err))
		events[n] = receipt
		n++
	}
	if n > 0 || len(events) == 0 {
		return n, nil
	}
	got, err := kq.Scan(ctx, len(events), timeout)
	copy(events, got)
	return len(got), err
}
