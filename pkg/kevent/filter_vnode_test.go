package kevent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scanUntil collects events until one satisfies match or the timeout ends.
func scanUntil(t *testing.T, kq *Instance, timeout time.Duration, match func(Event) bool) (Event, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		events, err := kq.Scan(ctx, 16, Forever)
		if err != nil {
			return Event{}, false
		}
		for _, ev := range events {
			if match(ev) {
				return ev, true
			}
		}
	}
}

func TestVnodeFile(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{})
	path := filepath.Join(t.TempDir(), "watched")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	ident, err := reg.WatchPath(path)
	require.NoError(t, err)
	again, err := reg.WatchPath(path)
	require.NoError(t, err)
	assert.Equal(t, ident, again)

	require.NoError(t, kq.Register(Event{
		Ident:  ident,
		Filter: FilterVnode,
		Flags:  EvAdd,
		FFlags: NoteWrite | NoteExtend | NoteDelete,
	}))
	assert.Empty(t, poll(t, kq))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("bc")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ev, ok := scanUntil(t, kq, 5*time.Second, func(ev Event) bool { return ev.FFlags&NoteWrite != 0 })
	require.True(t, ok, "no write event")
	assert.Equal(t, ident, ev.Ident)
	assert.NotZero(t, ev.Flags&EvClear, "vnode events are edge-triggered")

	require.NoError(t, os.Remove(path))
	ev, ok = scanUntil(t, kq, 5*time.Second, func(ev Event) bool { return ev.FFlags&NoteDelete != 0 })
	require.True(t, ok, "no delete event")
	assert.NotZero(t, ev.Flags&EvEOF)
}

func TestVnodeDirectory(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{})
	dir := t.TempDir()

	ident, err := reg.WatchPath(dir)
	require.NoError(t, err)
	require.NoError(t, kq.Register(Event{Ident: ident, Filter: FilterVnode, Flags: EvAdd, FFlags: NoteWrite}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "child"), nil, 0644))
	ev, ok := scanUntil(t, kq, 5*time.Second, func(ev Event) bool { return ev.FFlags&NoteWrite != 0 })
	require.True(t, ok, "no write event for a new entry")
	assert.Equal(t, ident, ev.Ident)
}

func TestVnodeErrors(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{})

	_, err := reg.WatchPath(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNoEntry)

	err = kq.Register(Event{Ident: 999, Filter: FilterVnode, Flags: EvAdd, FFlags: NoteWrite})
	assert.ErrorIs(t, err, ErrBadDescriptor)
	assert.Zero(t, kq.Stats().Knotes)
}

func TestVnodeDeleteStopsWatching(t *testing.T) {
	reg, kq := newTestInstance(t, RegistryOptions{})
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	ident, err := reg.WatchPath(path)
	require.NoError(t, err)
	require.NoError(t, kq.Register(Event{Ident: ident, Filter: FilterVnode, Flags: EvAdd, FFlags: NoteWrite}))
	require.NoError(t, kq.Register(Event{Ident: ident, Filter: FilterVnode, Flags: EvDelete}))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.Empty(t, waitEvents(t, kq, 50*time.Millisecond))
	assert.Zero(t, kq.Stats().Knotes)
}
