// ABOUTME: Fake output driver and helpers for pipeline tests
// ABOUTME: Records writes and lets tests script free space, errors and sample format
package pipeline

import (
	"bytes"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio/output"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/ratecontrol"
)

// fakeDriver is an int16 driver with a fixed-size buffer whose free space
// the test controls.
type fakeDriver struct {
	mu sync.Mutex

	size     int // bytes
	free     int // bytes reported by WriteAvailable
	accept   int // max bytes per Write, 0 = unlimited
	writeErr error
	startErr error
	float    bool

	written  []byte
	writes   int
	starts   int
	stops    int
	nonblock bool
	closed   bool
}

func (d *fakeDriver) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.writes++
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	n := len(p)
	if d.accept > 0 && n > d.accept {
		n = d.accept
	}
	d.written = append(d.written, p[:n]...)
	return n, nil
}

func (d *fakeDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	return d.startErr
}

func (d *fakeDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return nil
}

func (d *fakeDriver) SetNonblocking(nonblock bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nonblock = nonblock
}

func (d *fakeDriver) UseFloat() bool { return d.float }

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) WriteAvailable() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.free
}

func (d *fakeDriver) BufferSize() int { return d.size }

func (d *fakeDriver) setFree(free int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.free = free
}

func (d *fakeDriver) snapshot() (writes, starts, stops int, written int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes, d.starts, d.stops, len(d.written)
}

func (d *fakeDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// bare hides WriteAvailable and BufferSize from the pipeline
func bare(d *fakeDriver) output.Driver {
	return struct{ output.Driver }{d}
}

func factoryFor(d output.Driver) output.Factory {
	return func(output.Config) (output.Driver, error) { return d, nil }
}

var errFakeOpen = errors.New("device unplugged")

func failingFactory(output.Config) (output.Driver, error) {
	return nil, errFakeOpen
}

// testConfig returns a stereo 44.1k -> 48k config bound to d
func testConfig(d output.Driver) Config {
	return Config{
		InputRate:        44100,
		OutputRate:       48000,
		Channels:         2,
		Driver:           "fake",
		DriverFactory:    factoryFor(d),
		Resampler:        "linear",
		RateControlDelta: ratecontrol.DefaultDelta,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// captureLogger returns a logger writing into a buffer
func captureLogger() (*log.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return log.New(buf, "", 0), buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newFake() *fakeDriver {
	// 1024 stereo int16 frames
	return &fakeDriver{size: 4096, free: 2048}
}

func frames(n int) []int16 {
	s := make([]int16, n*2)
	for i := range s {
		s[i] = int16(i * 16)
	}
	return s
}
