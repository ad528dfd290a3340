package kevent

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const filterCounting Filter = -20

// countingFilter is a custom filter fed by a test-driven source. It checks
// that no two callbacks ever run on the same knote at once.
type countingFilter struct {
	overlaps atomic.Int32
	attached atomic.Int32
	detached atomic.Int32

	mu     sync.Mutex
	knotes map[*Knote]struct{}
}

type countingHook struct {
	busy atomic.Int32
}

func newCountingFilter() *countingFilter {
	return &countingFilter{knotes: make(map[*Knote]struct{})}
}

func (f *countingFilter) enter(kn *Knote) func() {
	h := kn.Hook().(*countingHook)
	if h.busy.Add(1) != 1 {
		f.overlaps.Add(1)
	}
	return func() { h.busy.Add(-1) }
}

func (*countingFilter) IsFD() bool { return false }

func (f *countingFilter) Attach(kn *Knote) error {
	kn.SetHook(&countingHook{})
	defer f.enter(kn)()
	f.attached.Add(1)

	f.mu.Lock()
	f.knotes[kn] = struct{}{}
	f.mu.Unlock()
	return nil
}

func (f *countingFilter) Detach(kn *Knote) {
	defer f.enter(kn)()
	f.detached.Add(1)

	f.mu.Lock()
	delete(f.knotes, kn)
	f.mu.Unlock()
}

func (f *countingFilter) Event(kn *Knote, hint int64) bool {
	defer f.enter(kn)()
	if hint != 0 {
		kn.SetData(kn.Data() + hint)
	}
	return kn.Data() > 0
}

func (f *countingFilter) fire() {
	f.mu.Lock()
	kns := make([]*Knote, 0, len(f.knotes))
	for kn := range f.knotes {
		kns = append(kns, kn)
	}
	f.mu.Unlock()
	for _, kn := range kns {
		kn.Notify(1)
	}
}

func TestCustomFilterCallbacksSerialized(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	f := newCountingFilter()
	require.NoError(t, reg.Register(filterCounting, f))

	kq := reg.NewInstance()
	ctx, cancel := context.WithCancel(context.Background())

	var workers, background sync.WaitGroup
	for w := range 4 {
		workers.Add(1)
		go func() {
			defer workers.Done()
			rng := rand.New(rand.NewPCG(uint64(w), 42))
			for range 300 {
				ev := Event{Ident: rng.Uint64N(8), Filter: filterCounting}
				switch rng.IntN(3) {
				case 0:
					ev.Flags = EvAdd | EvClear
				case 1:
					ev.Flags = EvDelete
				default:
					ev.Flags = EvDisable
					if rng.IntN(2) == 0 {
						ev.Flags = EvEnable
					}
				}
				err := kq.Register(ev)
				if err != nil && !errors.Is(err, ErrNoEntry) {
					t.Errorf("register: %v", err)
				}
			}
		}()
	}
	for range 2 {
		background.Add(1)
		go func() {
			defer background.Done()
			for ctx.Err() == nil {
				_, _ = kq.Scan(ctx, 8, 0)
			}
		}()
	}
	background.Add(1)
	go func() {
		defer background.Done()
		for ctx.Err() == nil {
			f.fire()
		}
	}()

	workers.Wait()
	cancel()
	background.Wait()
	require.NoError(t, kq.Close())

	assert.Zero(t, f.overlaps.Load(), "callbacks overlapped on one knote")
	assert.Equal(t, f.attached.Load(), f.detached.Load())
	assert.NoError(t, reg.Unregister(filterCounting))
}

func TestRegistryFilterLifecycle(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	f := newCountingFilter()

	assert.ErrorIs(t, reg.Register(Filter(3), f), ErrInvalid)
	assert.ErrorIs(t, reg.Register(filterMin-1, f), ErrInvalid)
	assert.ErrorIs(t, reg.Register(FilterTimer, f), ErrBusy)

	require.NoError(t, reg.Register(filterCounting, f))
	assert.ErrorIs(t, reg.Register(filterCounting, f), ErrBusy)

	kq := reg.NewInstance()
	require.NoError(t, kq.Register(Event{Ident: 1, Filter: filterCounting, Flags: EvAdd}))
	assert.ErrorIs(t, reg.Unregister(filterCounting), ErrBusy)

	f.fire()
	events, err := kq.Scan(context.Background(), 4, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Data)

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: filterCounting, Flags: EvDelete}))
	require.NoError(t, reg.Unregister(filterCounting))
	assert.ErrorIs(t, reg.Unregister(filterCounting), ErrNoEntry)
	assert.ErrorIs(t, reg.Unregister(FilterUser), ErrInvalid)

	err = kq.Register(Event{Ident: 1, Filter: filterCounting, Flags: EvAdd})
	assert.ErrorIs(t, err, ErrInvalid)
	require.NoError(t, kq.Close())
}

func TestCloseReleasesFilterReferences(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	require.NoError(t, reg.Register(filterCounting, newCountingFilter()))

	kq := reg.NewInstance()
	for i := range uint64(3) {
		require.NoError(t, kq.Register(Event{Ident: i, Filter: filterCounting, Flags: EvAdd}))
	}
	assert.ErrorIs(t, reg.Unregister(filterCounting), ErrBusy)

	require.NoError(t, kq.Close())
	assert.NoError(t, reg.Unregister(filterCounting))
}
