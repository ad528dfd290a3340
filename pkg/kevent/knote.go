package kevent

import "sync"

// status bits of a knote. Protected by the owning instance's mutex.
type status uint16

const (
	statusActive   status = 1 << iota // the event condition holds
	statusQueued                      // on the ready queue, or being delivered
	statusDisabled                    // delivery suppressed
	statusDetached                    // not attached to its source
	statusInflux                      // a callback owns the knote
	statusMarker                      // scan pass delimiter, never delivered
	statusScan                        // in flux for a modify or a delivery, not going away
)

// Knote is one registration of an (ident, filter) pair on an Instance.
//
// Filters read and update a knote from inside their callbacks through the
// accessors below; the callbacks are serialized, so no further locking is
// needed there. Sources outside a callback only call Notify.
type Knote struct {
	kq  *Instance
	fop FilterOps

	// mu is the source lock: it serializes Notify with Attach, Event and
	// Touch, and guards ev, the saved flags and the hook.
	mu        sync.Mutex
	ev        Event
	sfflags   uint32
	sdata     int64
	hook      any
	detaching bool

	// Fields below are protected by kq.mu.
	status status
	prev   *Knote
	next   *Knote
	linked bool
}

// Ident returns the source identifier.
func (kn *Knote) Ident() uint64 { return kn.ev.Ident }

// Filter returns the filter kind.
func (kn *Knote) Filter() Filter { return kn.ev.Filter }

// Instance returns the owning instance.
func (kn *Knote) Instance() *Instance { return kn.kq }

// Flags returns the stored flags.
func (kn *Knote) Flags() Flags { return kn.ev.Flags }

// SetFlags replaces the stored flags.
func (kn *Knote) SetFlags(f Flags) { kn.ev.Flags = f }

// SFFlags returns the filter flags saved at registration.
func (kn *Knote) SFFlags() uint32 { return kn.sfflags }

// SetSFFlags replaces the saved filter flags.
func (kn *Knote) SetSFFlags(f uint32) { kn.sfflags = f }

// SData returns the data saved at registration.
func (kn *Knote) SData() int64 { return kn.sdata }

// SetSData replaces the saved data.
func (kn *Knote) SetSData(d int64) { kn.sdata = d }

// FFlags returns the output filter flags.
func (kn *Knote) FFlags() uint32 { return kn.ev.FFlags }

// SetFFlags replaces the output filter flags.
func (kn *Knote) SetFFlags(f uint32) { kn.ev.FFlags = f }

// Data returns the output data.
func (kn *Knote) Data() int64 { return kn.ev.Data }

// SetData replaces the output data.
func (kn *Knote) SetData(d int64) { kn.ev.Data = d }

// UData returns the caller's opaque tag.
func (kn *Knote) UData() any { return kn.ev.UData }

// Hook returns the filter-private state.
func (kn *Knote) Hook() any { return kn.hook }

// SetHook replaces the filter-private state.
func (kn *Knote) SetHook(h any) { kn.hook = h }

// Notify reports a source event. The filter's Event callback decides from
// hint whether the knote becomes active; active knotes are queued for
// delivery. Notify is a no-op once the knote is being detached.
func (kn *Knote) Notify(hint int64) {
	kn.mu.Lock()
	defer kn.mu.Unlock()

	if kn.detaching {
		return
	}
	if kn.fop.Event(kn, hint) {
		kn.kq.activate(kn)
	}
}

func (kn *Knote) isMarker() bool {
	return kn.status&statusMarker != 0
}

func (kn *Knote) inFlux() bool {
	return kn.status&statusInflux != 0
}

// readyQueue is an intrusive FIFO of knotes.
type readyQueue struct {
	head *Knote
	tail *Knote
}

func (q *readyQueue) pushBack(kn *Knote) {
	kn.prev, kn.next = q.tail, nil
	if q.tail != nil {
		q.tail.next = kn
	} else {
		q.head = kn
	}
	q.tail = kn
	kn.linked = true
}

func (q *readyQueue) front() *Knote {
	return q.head
}

func (q *readyQueue) remove(kn *Knote) {
	if !kn.linked {
		return
	}
	if kn.prev != nil {
		kn.prev.next = kn.next
	} else {
		q.head = kn.next
	}
	if kn.next != nil {
		kn.next.prev = kn.prev
	} else {
		q.tail = kn.prev
	}
	kn.prev, kn.next, kn.linked = nil, nil, false
}

// sourceIndex maps idents to knotes: a slice indexed by descriptor for
// descriptor filters, a map for everything else.
type sourceIndex struct {
	fds  [][]*Knote
	hash map[uint64][]*Knote
}

// maxFD bounds descriptor idents.
const maxFD = 1 << 20

func (ix *sourceIndex) lookup(ident uint64, filter Filter, isFD bool) *Knote {
	var list []*Knote
	if isFD {
		if ident < uint64(len(ix.fds)) {
			list = ix.fds[ident]
		}
	} else {
		list = ix.hash[ident]
	}
	for _, kn := range list {
		if kn.ev.Filter == filter {
			return kn
		}
	}
	return nil
}

func (ix *sourceIndex) insert(kn *Knote, isFD bool) {
	ident := kn.ev.Ident
	if isFD {
		if ident >= uint64(len(ix.fds)) {
			size := max(len(ix.fds)*2, 64)
			for uint64(size) <= ident {
				size *= 2
			}
			grown := make([][]*Knote, size)
			copy(grown, ix.fds)
			ix.fds = grown
		}
		ix.fds[ident] = append(ix.fds[ident], kn)
		return
	}
	if ix.hash == nil {
		ix.hash = make(map[uint64][]*Knote)
	}
	ix.hash[ident] = append(ix.hash[ident], kn)
}

func (ix *sourceIndex) remove(kn *Knote, isFD bool) {
	ident := kn.ev.Ident
	if isFD {
		if ident < uint64(len(ix.fds)) {
			ix.fds[ident] = without(ix.fds[ident], kn)
		}
		return
	}
	if list := without(ix.hash[ident], kn); len(list) > 0 {
		ix.hash[ident] = list
	} else {
		delete(ix.hash, ident)
	}
}

func (ix *sourceIndex) all() []*Knote {
	var out []*Knote
	for _, list := range ix.fds {
		out = append(out, list...)
	}
	for _, list := range ix.hash {
		out = append(out, list...)
	}
	return out
}

func without(list []*Knote, kn *Knote) []*Knote {
	for i, k := range list {
		if k == kn {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
