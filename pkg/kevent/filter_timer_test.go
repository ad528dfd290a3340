package kevent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTimerPeriodic(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{})

	start := time.Now()
	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd, Data: 10}))
	assert.Equal(t, int64(1), reg.OutstandingTimers())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var fired int64
	first := time.Duration(0)
	for fired < 5 {
		events, err := kq.Scan(ctx, 4, Forever)
		require.NoError(t, err)
		for _, ev := range events {
			assert.Equal(t, FilterTimer, ev.Filter)
			assert.GreaterOrEqual(t, ev.Data, int64(1))
			assert.NotZero(t, ev.Flags&EvClear, "timers are edge-triggered")
			if first == 0 {
				first = time.Since(start)
			}
			fired += ev.Data
		}
	}
	assert.GreaterOrEqual(t, first, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvDelete}))
	assert.Zero(t, reg.OutstandingTimers())
}

func TestTimerOneshot(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{})
	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd | EvOneshot, Data: 5, UData: 42}))

	events := waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Data)
	assert.Equal(t, 42, events[0].UData)

	assert.Zero(t, kq.Stats().Knotes)
	assert.Zero(t, reg.OutstandingTimers())
	assert.Empty(t, waitEvents(t, kq, 30*time.Millisecond))
}

func TestTimerUnits(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd | EvOneshot, FFlags: NoteUSeconds, Data: 500}))

	start := time.Now()
	events := waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTimerInvalid(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{})

	err := kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd, Data: -1})
	assert.ErrorIs(t, err, ErrInvalid)

	err = kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd, FFlags: NoteSeconds | NoteUSeconds, Data: 1})
	assert.ErrorIs(t, err, ErrInvalid)

	assert.Zero(t, reg.OutstandingTimers())
	assert.Zero(t, kq.Stats().Knotes)
}

func TestTimerCeiling(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{MaxTimers: 2})
	other := reg.NewInstance()
	t.Cleanup(func() { _ = other.Close() })

	hour := Event{Filter: FilterTimer, Flags: EvAdd, FFlags: NoteSeconds, Data: 3600}

	hour.Ident = 1
	require.NoError(t, kq.Register(hour))
	hour.Ident = 2
	require.NoError(t, other.Register(hour))

	hour.Ident = 3
	err := kq.Register(hour)
	assert.ErrorIs(t, err, ErrNoMemory)

	require.NoError(t, other.Close())
	assert.Equal(t, int64(1), reg.OutstandingTimers())
	require.NoError(t, kq.Register(hour))
}

func TestTimerModifyRestarts(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd, FFlags: NoteSeconds, Data: 3600}))
	assert.Empty(t, waitEvents(t, kq, 20*time.Millisecond))

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd, Data: 5}))
	events := waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Ident)
}

func TestTimerDisableEnableKeepsSchedule(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd, Data: 500}))

	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvDisable}))
	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvEnable}))

	events, err := kq.Scan(context.Background(), 4, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, events, "enable must not restart the timer with a zero interval")

	events = waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Data)
}

func TestTimerInvalidModify(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{})
	require.NoError(t, kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd, Data: 10}))

	err := kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd, Data: -5})
	assert.ErrorIs(t, err, ErrInvalid)

	err = kq.Register(Event{Ident: 1, Filter: FilterTimer, Flags: EvAdd | EvDisable, FFlags: NoteSeconds | NoteNSeconds, Data: 1})
	assert.ErrorIs(t, err, ErrInvalid)

	// The rejected changes left the 10ms timer running and enabled.
	assert.Equal(t, int64(1), reg.OutstandingTimers())
	events := waitEvents(t, kq, 5*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, uint64(1), events[0].Ident)

	changes := []Event{{Ident: 1, Filter: FilterTimer, Flags: EvAdd | EvReceipt, Data: -1}}
	out := make([]Event, 1)
	n, err := kq.Kevent(context.Background(), changes, out, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, EvError, out[0].Flags)
	assert.Equal(t, int64(unix.EINVAL), out[0].Data)
}
