package kevent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestInstance(t *testing.T, opts RegistryOptions) (*Registry, *Instance) {
	t.Helper()
	reg := NewRegistry(opts)
	kq := reg.NewInstance()
	t.Cleanup(func() { _ = kq.Close() })
	return reg, kq
}

func poll(t *testing.T, kq *Instance) []Event {
	t.Helper()
	events, err := kq.Scan(context.Background(), 16, 0)
	require.NoError(t, err)
	return events
}

func waitEvents(t *testing.T, kq *Instance, timeout time.Duration) []Event {
	t.Helper()
	events, err := kq.Scan(context.Background(), 16, timeout)
	require.NoError(t, err)
	return events
}

func addUser(t *testing.T, kq *Instance, ident uint64, flags Flags, fflags uint32) {
	t.Helper()
	require.NoError(t, kq.Register(Event{Ident: ident, Filter: FilterUser, Flags: EvAdd | flags, FFlags: fflags}))
}

func TestUserTrigger(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 1, EvClear, 0)

	assert.Empty(t, poll(t, kq))

	require.NoError(t, kq.Trigger(1, 0))
	events := poll(t, kq)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Ident)
	assert.Equal(t, FilterUser, events[0].Filter)

	assert.Empty(t, poll(t, kq), "EvClear resets the trigger")
}

func TestUserLevelTriggeredStaysQueued(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 1, 0, NoteTrigger)

	require.Len(t, poll(t, kq), 1)
	require.Len(t, poll(t, kq), 1)
}

func TestUserFFlagsControl(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 7, EvClear, 0x0f)

	require.NoError(t, kq.Trigger(7, NoteFFAnd|0x03))
	events := poll(t, kq)
	require.Len(t, events, 1)
	assert.Equal(t, uint32(0x03), events[0].FFlags)

	require.NoError(t, kq.Trigger(7, NoteFFOr|0x10))
	events = poll(t, kq)
	require.Len(t, events, 1)
	assert.Equal(t, uint32(0x13), events[0].FFlags)

	require.NoError(t, kq.Trigger(7, NoteFFCopy|0x100))
	events = poll(t, kq)
	require.Len(t, events, 1)
	assert.Equal(t, uint32(0x100), events[0].FFlags)
}

func TestDisableSuppressesDelivery(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 1, EvClear, 0)

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterUser, Flags: EvDisable}))
	require.NoError(t, kq.Trigger(1, 0))
	assert.Empty(t, poll(t, kq))

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterUser, Flags: EvEnable}))
	events := poll(t, kq)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Ident)
}

func TestAddDisabled(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 1, EvDisable|EvClear, NoteTrigger)
	assert.Empty(t, poll(t, kq))

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterUser, Flags: EvEnable}))
	assert.Len(t, poll(t, kq), 1)
}

func TestDispatchDisablesAfterDelivery(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 1, EvDispatch|EvClear, NoteTrigger)

	require.Len(t, poll(t, kq), 1)

	require.NoError(t, kq.Trigger(1, 0))
	assert.Empty(t, poll(t, kq))

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterUser, Flags: EvEnable}))
	assert.Len(t, poll(t, kq), 1)
}

func TestOneshotDeliveredOnce(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 1, EvOneshot, NoteTrigger)

	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := kq.Scan(context.Background(), 4, 50*time.Millisecond)
			assert.NoError(t, err)
			mu.Lock()
			total += len(events)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Zero(t, kq.Stats().Knotes)

	err := kq.Trigger(1, 0)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestRegisterErrors(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})

	err := kq.Register(Event{Ident: 9, Filter: FilterUser})
	assert.ErrorIs(t, err, ErrNoEntry)
	assert.Equal(t, unix.ENOENT, Errno(err))

	err = kq.Register(Event{Ident: 9, Filter: Filter(-20), Flags: EvAdd})
	assert.ErrorIs(t, err, ErrInvalid)

	addUser(t, kq, 9, 0, 0)
	require.NoError(t, kq.Register(Event{Ident: 9, Filter: FilterUser, Flags: EvDelete}))
	err = kq.Register(Event{Ident: 9, Filter: FilterUser, Flags: EvDelete})
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestAddExistingModifies(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 1, EvClear, 0)
	addUser(t, kq, 1, 0, NoteTrigger)

	assert.Equal(t, 1, kq.Stats().Knotes)
	assert.Len(t, poll(t, kq), 1)
}

func TestDeleteRemovesQueuedEvent(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 1, 0, NoteTrigger)
	require.Equal(t, 1, kq.Stats().Queued)

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterUser, Flags: EvDelete}))
	stats := kq.Stats()
	assert.Zero(t, stats.Queued)
	assert.Zero(t, stats.Knotes)
	assert.Empty(t, poll(t, kq))
}

func TestKeventReceipts(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})

	changes := []Event{
		{Ident: 1, Filter: FilterUser, Flags: EvAdd | EvReceipt},
		{Ident: 2, Filter: FilterUser},
	}
	events := make([]Event, 4)
	n, err := kq.Kevent(context.Background(), changes, events, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	assert.Equal(t, EvError, events[0].Flags)
	assert.Zero(t, events[0].Data)
	assert.Equal(t, EvError, events[1].Flags)
	assert.Equal(t, int64(unix.ENOENT), events[1].Data)
}

func TestKeventScansAfterChanges(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})

	changes := []Event{{Ident: 3, Filter: FilterUser, Flags: EvAdd | EvClear, FFlags: NoteTrigger, UData: "tag"}}
	events := make([]Event, 4)
	n, err := kq.Kevent(context.Background(), changes, events, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, uint64(3), events[0].Ident)
	assert.Equal(t, "tag", events[0].UData)
}

func TestKeventErrorWithoutRoom(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})

	_, err := kq.Kevent(context.Background(), []Event{{Ident: 2, Filter: FilterUser}}, nil, 0)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestScanTimeout(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})

	start := time.Now()
	events, err := kq.Scan(context.Background(), 4, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestScanInterrupted(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	events, err := kq.Scan(ctx, 4, Forever)
	assert.Empty(t, events)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, unix.EINTR, Errno(err))
}

func TestScanWakesOnTrigger(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	addUser(t, kq, 5, EvClear, 0)

	time.AfterFunc(20*time.Millisecond, func() { _ = kq.Trigger(5, 0) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := kq.Scan(ctx, 4, Forever)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(5), events[0].Ident)
}

func TestScanHonorsMax(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	for i := range uint64(5) {
		addUser(t, kq, i, EvClear, NoteTrigger)
	}

	events, err := kq.Scan(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, uint64(i), ev.Ident, "activation order")
	}

	events, err = kq.Scan(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCloseUnblocksScanners(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	kq := reg.NewInstance()
	addUser(t, kq, 1, EvClear, 0)

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := kq.Scan(context.Background(), 4, Forever)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, kq.Close())
	for range 2 {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(5 * time.Second):
			t.Fatal("scanner not released by Close")
		}
	}

	stats := kq.Stats()
	assert.True(t, stats.Closed)
	assert.Zero(t, stats.Knotes)

	assert.ErrorIs(t, kq.Close(), ErrClosed)
	assert.ErrorIs(t, kq.Trigger(1, 0), ErrClosed)
	assert.True(t, errors.Is(ErrClosed, unix.EBADF))
}
