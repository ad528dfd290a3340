package kevent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/wcstore/internal/logger"
	"github.com/marmos91/wcstore/pkg/metrics"
)

// FilterOps is the callback set of one filter kind.
//
// Attach runs with the knote in flux and its source lock held; it links the
// knote to its source and may leave the knote already active. Event runs
// with the source lock held and reports whether the event condition holds;
// hint is zero when the multiplexer re-tests the knote and filter-defined
// otherwise. Detach runs with the knote in flux once Notify has been
// disabled, at most once per knote, and must not return while a source
// delivery to the knote is still running.
type FilterOps interface {
	// IsFD reports whether idents are descriptors.
	IsFD() bool
	Attach(kn *Knote) error
	Detach(kn *Knote)
	Event(kn *Knote, hint int64) bool
}

// TouchOp selects what a Touch callback does.
type TouchOp int

const (
	// TouchRegister merges a modify request into the knote's saved state.
	TouchRegister TouchOp = iota
	// TouchProcess fills the event delivered to the caller.
	TouchProcess
)

// Toucher is implemented by filters that merge saved state with live
// state themselves, on modify and on delivery. Without it the multiplexer
// copies the request's fflags, data and udata on modify, and delivers the
// knote's event, resetting it under EvClear. An error from a
// TouchRegister call rejects the modify and leaves the knote unchanged;
// TouchProcess must not fail.
type Toucher interface {
	Touch(kn *Knote, ev *Event, op TouchOp) error
}

type filterEntry struct {
	ops     FilterOps
	refs    int
	builtin bool
}

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	// MaxTimers caps the timers armed across every instance. Default 4096.
	MaxTimers int64

	// PollInterval is how often descriptor readiness is sampled. Default 5ms.
	PollInterval time.Duration

	// ProcPollInterval is how often untracked processes are probed for
	// exit. Default 100ms.
	ProcPollInterval time.Duration

	// Metrics may be nil.
	Metrics metrics.KeventMetrics
}

// Registry is the process-wide filter table and the owner of the
// resources filters share.
type Registry struct {
	mu      sync.RWMutex
	filters map[Filter]*filterEntry

	maxTimers int64
	timers    atomic.Int64

	procs  *ProcessTable
	fds    *fdWatcher
	vnodes *vnodeWatcher

	metrics metrics.KeventMetrics
	nextID  atomic.Uint64
}

// NewRegistry creates a registry with the built-in filters installed.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.MaxTimers <= 0 {
		opts.MaxTimers = 4096
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.ProcPollInterval <= 0 {
		opts.ProcPollInterval = 100 * time.Millisecond
	}

	r := &Registry{
		filters:   make(map[Filter]*filterEntry),
		maxTimers: opts.MaxTimers,
		metrics:   opts.Metrics,
	}
	r.procs = newProcessTable(opts.ProcPollInterval)
	r.fds = newFDWatcher(opts.PollInterval)
	r.vnodes = newVnodeWatcher()

	r.filters[FilterRead] = &filterEntry{ops: &readFilter{w: r.fds}, builtin: true}
	r.filters[FilterWrite] = &filterEntry{ops: &writeFilter{w: r.fds}, builtin: true}
	r.filters[FilterVnode] = &filterEntry{ops: &vnodeFilter{w: r.vnodes}, builtin: true}
	r.filters[FilterProc] = &filterEntry{ops: &procFilter{table: r.procs}, builtin: true}
	r.filters[FilterTimer] = &filterEntry{ops: &timerFilter{reg: r}, builtin: true}
	r.filters[FilterUser] = &filterEntry{ops: userFilter{}, builtin: true}
	return r
}

// Register installs a custom filter under id f.
func (r *Registry) Register(f Filter, ops FilterOps) error {
	if f >= 0 || f < filterMin || ops == nil {
		return fmt.Errorf("%w: filter id %d", ErrInvalid, f)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.filters[f]; ok {
		return fmt.Errorf("%w: filter %s already registered", ErrBusy, f)
	}
	r.filters[f] = &filterEntry{ops: ops}
	logger.Debug("kevent filter registered", logger.KeyFilter, f.String())
	return nil
}

// Unregister removes a custom filter. It fails while knotes use it.
func (r *Registry) Unregister(f Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.filters[f]
	if !ok {
		return fmt.Errorf("%w: filter %s", ErrNoEntry, f)
	}
	if entry.builtin {
		return fmt.Errorf("%w: filter %s is built in", ErrInvalid, f)
	}
	if entry.refs > 0 {
		return fmt.Errorf("%w: filter %s has %d registrations", ErrBusy, f, entry.refs)
	}
	delete(r.filters, f)
	return nil
}

// acquire looks up f and takes a reference on it.
func (r *Registry) acquire(f Filter) (FilterOps, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.filters[f]
	if !ok {
		return nil, fmt.Errorf("%w: unknown filter %d", ErrInvalid, int16(f))
	}
	entry.refs++
	return entry.ops, nil
}

func (r *Registry) release(f Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.filters[f]; ok && entry.refs > 0 {
		entry.refs--
	}
}

// reserveTimer takes one slot under the timer ceiling.
func (r *Registry) reserveTimer() error {
	for {
		n := r.timers.Load()
		if n >= r.maxTimers {
			return fmt.Errorf("%w: %d timers armed", ErrNoMemory, n)
		}
		if r.timers.CompareAndSwap(n, n+1) {
			metrics.SetOutstandingTimers(r.metrics, n+1)
			return nil
		}
	}
}

func (r *Registry) releaseTimer() {
	metrics.SetOutstandingTimers(r.metrics, r.timers.Add(-1))
}

// OutstandingTimers returns the number of armed timers.
func (r *Registry) OutstandingTimers() int64 {
	return r.timers.Load()
}

// Processes returns the process table feeding FilterProc.
func (r *Registry) Processes() *ProcessTable {
	return r.procs
}

// WatchPath returns the FilterVnode ident of path, which must exist.
func (r *Registry) WatchPath(path string) (uint64, error) {
	return r.vnodes.ident(path)
}
