// ABOUTME: Byte ring buffer between a pushing writer and a pulling device
// ABOUTME: Writers can block for space; the reader zero-fills on underrun
package output

import (
	"sync"
)

// ring is a thread-safe circular byte buffer. Write blocks while full
// unless the ring is in nonblocking mode or closed; Read never blocks.
type ring struct {
	mu       sync.Mutex
	space    *sync.Cond
	buf      []byte
	readPos  int
	count    int
	nonblock bool
	closed   bool

	underruns int64
}

func newRing(capacity int) *ring {
	r := &ring{buf: make([]byte, capacity)}
	r.space = sync.NewCond(&r.mu)
	return r
}

// Write copies as much of p as fits, waiting for space in blocking mode.
// It returns early with a short count when switched to nonblocking or closed.
func (r *ring) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	written := 0
	for written < len(p) {
		if r.closed {
			break
		}
		free := len(r.buf) - r.count
		if free == 0 {
			if r.nonblock {
				break
			}
			r.space.Wait()
			continue
		}

		n := min(free, len(p)-written)
		writePos := (r.readPos + r.count) % len(r.buf)
		first := copy(r.buf[writePos:], p[written:written+n])
		copy(r.buf, p[written+first:written+n])
		r.count += n
		written += n
	}
	return written
}

// Read fills p, zero-filling whatever the ring cannot provide
func (r *ring) Read(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(r.count, len(p))
	first := copy(p[:n], r.buf[r.readPos:])
	copy(p[first:n], r.buf)
	r.readPos = (r.readPos + n) % len(r.buf)
	r.count -= n

	if n < len(p) {
		clear(p[n:])
		if r.count == 0 && !r.closed {
			r.underruns++
		}
	}
	if n > 0 {
		r.space.Broadcast()
	}
	return n
}

// Free returns the number of bytes that can be written without blocking
func (r *ring) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.count
}

// Len returns the number of buffered bytes
func (r *ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the ring capacity in bytes
func (r *ring) Cap() int {
	return len(r.buf)
}

// Underruns returns how many reads found the ring empty
func (r *ring) Underruns() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.underruns
}

func (r *ring) SetNonblocking(nonblock bool) {
	r.mu.Lock()
	r.nonblock = nonblock
	r.mu.Unlock()
	r.space.Broadcast()
}

// Reset drops buffered data
func (r *ring) Reset() {
	r.mu.Lock()
	r.readPos = 0
	r.count = 0
	r.mu.Unlock()
	r.space.Broadcast()
}

// Close wakes blocked writers; later writes consume nothing
func (r *ring) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.space.Broadcast()
}
