package kevent

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func TestReadableBytes(t *testing.T) {
	r, w := newPipe(t)
	fd := int(r.Fd())
	assert.Zero(t, readableBytes(fd))

	_, err := w.Write([]byte("twelve bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), readableBytes(fd))

	assert.Zero(t, readableBytes(-1), "a bad descriptor reports nothing")
}

func TestReadPipe(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{PollInterval: time.Millisecond})
	r, w := newPipe(t)
	fd := uint64(r.Fd())

	require.NoError(t, kq.Register(Event{Ident: fd, Filter: FilterRead, Flags: EvAdd}))
	assert.Empty(t, poll(t, kq))

	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)

	events := waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, fd, events[0].Ident)
	assert.Equal(t, FilterRead, events[0].Filter)
	assert.Equal(t, int64(5), events[0].Data)
	assert.Zero(t, events[0].Flags&EvEOF)

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	assert.Empty(t, waitEvents(t, kq, 30*time.Millisecond), "drained pipe is not readable")

	require.NoError(t, w.Close())
	events = waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.NotZero(t, events[0].Flags&EvEOF)
	assert.Zero(t, events[0].Data)
}

func TestReadLowWaterMark(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{PollInterval: time.Millisecond})
	r, w := newPipe(t)

	require.NoError(t, kq.Register(Event{Ident: uint64(r.Fd()), Filter: FilterRead, Flags: EvAdd, FFlags: NoteLowat, Data: 4}))

	_, err := w.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Empty(t, waitEvents(t, kq, 30*time.Millisecond))

	_, err = w.Write([]byte("cd"))
	require.NoError(t, err)
	events := waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4), events[0].Data)
}

func TestReadEdgeTriggered(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{PollInterval: time.Millisecond})
	r, w := newPipe(t)

	require.NoError(t, kq.Register(Event{Ident: uint64(r.Fd()), Filter: FilterRead, Flags: EvAdd | EvClear}))

	_, err := w.Write([]byte("ab"))
	require.NoError(t, err)
	events := waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Data)

	assert.Empty(t, waitEvents(t, kq, 30*time.Millisecond), "no new data, no new event")

	_, err = w.Write([]byte("c"))
	require.NoError(t, err)
	events = waitEvents(t, kq, 5*time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Data)
}

func TestWritePipe(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})
	_, w := newPipe(t)

	require.NoError(t, kq.Register(Event{Ident: uint64(w.Fd()), Filter: FilterWrite, Flags: EvAdd | EvOneshot}))
	events := poll(t, kq)
	require.Len(t, events, 1)
	assert.Equal(t, FilterWrite, events[0].Filter)
	assert.Zero(t, events[0].Data)
}

func TestBadDescriptor(t *testing.T) {
	_, kq := newTestInstance(t, RegistryOptions{})

	err := kq.Register(Event{Ident: 1<<20 - 1, Filter: FilterRead, Flags: EvAdd})
	assert.ErrorIs(t, err, ErrBadDescriptor)

	err = kq.Register(Event{Ident: maxFD, Filter: FilterRead, Flags: EvAdd})
	assert.ErrorIs(t, err, ErrBadDescriptor)
	assert.Zero(t, kq.Stats().Knotes)
}
