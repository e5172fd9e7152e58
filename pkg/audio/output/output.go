// ABOUTME: Audio output interface definition
// ABOUTME: Common driver interface and optional capabilities for playback backends
package output

import (
	"errors"
	"log"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
)

// DefaultLatencyMs is the buffer length drivers aim for when none is configured
const DefaultLatencyMs = 64

var (
	// ErrUnknownDriver is returned by Open for names nobody registered
	ErrUnknownDriver = errors.New("unknown audio driver")
	// ErrNotOpen is returned by drivers used after Close
	ErrNotOpen = errors.New("audio driver not open")
)

// Config is what a driver factory receives
type Config struct {
	Device     string // empty selects the default device
	SampleRate int
	Channels   int
	LatencyMs  int
	Logger     *log.Logger
}

// Driver is an opened audio backend
type Driver interface {
	// Write takes interleaved PCM in the driver's sample format and returns
	// the number of bytes consumed. In blocking mode it may wait for space;
	// in nonblocking mode it returns promptly and short writes are normal.
	Write(p []byte) (int, error)

	Start() error
	Stop() error

	// SetNonblocking switches the write policy and wakes blocked writers.
	// It is called from other goroutines while Write may be in progress,
	// so implementations must make it safe for concurrent use with Write.
	SetNonblocking(nonblock bool)

	// UseFloat reports whether Write expects float32 rather than int16 samples
	UseFloat() bool

	Close() error
}

// WriteAvailabler reports free buffer space in bytes
type WriteAvailabler interface {
	WriteAvailable() int
}

// BufferSizer reports total buffer size in bytes
type BufferSizer interface {
	BufferSize() int
}

// SampleFormat returns the sample layout d expects
func SampleFormat(d Driver) audio.SampleFormat {
	if d.UseFloat() {
		return audio.FormatFloat32
	}
	return audio.FormatInt16
}

func (c Config) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c Config) latencyMs() int {
	if c.LatencyMs > 0 {
		return c.LatencyMs
	}
	return DefaultLatencyMs
}

// bufferBytes sizes a buffer of the configured latency in whole frames
func (c Config) bufferBytes(frameBytes int) int {
	frames := c.SampleRate * c.latencyMs() / 1000
	if frames < 1 {
		frames = 1
	}
	return frames * frameBytes
}
