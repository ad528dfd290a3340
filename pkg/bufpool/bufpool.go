// Package bufpool keeps reusable copy buffers for moving pristine texts
// between stores and working files.
//
// Buffers come in two classes: a small one for short texts and the
// default io.Copy-sized one, and a large one for bulk copies. Sizes above
// the large class are allocated directly and never pooled.
package bufpool

import (
	"io"
	"sync"
)

const (
	// SmallSize matches the buffer io.Copy allocates on its own.
	SmallSize = 32 << 10

	// LargeSize is used when the caller expects a big text.
	LargeSize = 1 << 20
)

// Pool hands out byte slices from two size classes.
type Pool struct {
	small     sync.Pool
	large     sync.Pool
	smallSize int
	largeSize int
}

// NewPool creates a pool. Non-positive sizes fall back to SmallSize and
// LargeSize.
func NewPool(smallSize, largeSize int) *Pool {
	if smallSize <= 0 {
		smallSize = SmallSize
	}
	if largeSize <= smallSize {
		largeSize = max(LargeSize, smallSize*2)
	}
	p := &Pool{smallSize: smallSize, largeSize: largeSize}
	p.small.New = func() any {
		b := make([]byte, p.smallSize)
		return &b
	}
	p.large.New = func() any {
		b := make([]byte, p.largeSize)
		return &b
	}
	return p
}

// Get returns a slice of length size. Slices from a size class share the
// class capacity; larger requests are plain allocations.
func (p *Pool) Get(size int) []byte {
	var bp *[]byte
	switch {
	case size <= p.smallSize:
		bp = p.small.Get().(*[]byte)
	case size <= p.largeSize:
		bp = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*bp)[:size]
}

// Put returns buf to its class. Slices not obtained from Get are dropped.
func (p *Pool) Put(buf []byte) {
	full := buf[:cap(buf)]
	switch cap(buf) {
	case p.smallSize:
		p.small.Put(&full)
	case p.largeSize:
		p.large.Put(&full)
	}
}

// Copy copies src to dst through a pooled buffer. sizeHint selects the
// class; pass a negative value when the size is unknown.
func (p *Pool) Copy(dst io.Writer, src io.Reader, sizeHint int64) (int64, error) {
	size := p.smallSize
	if sizeHint > int64(p.smallSize) {
		size = p.largeSize
	}
	buf := p.Get(size)
	defer p.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

var defaultPool = NewPool(SmallSize, LargeSize)

// Get returns a slice of length size from the default pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put returns buf to the default pool.
func Put(buf []byte) { defaultPool.Put(buf) }

// Copy copies src to dst through the default pool.
func Copy(dst io.Writer, src io.Reader, sizeHint int64) (int64, error) {
	return defaultPool.Copy(dst, src, sizeHint)
}
