// ABOUTME: Pipeline configuration, defaults and validation
// ABOUTME: Rejects configurations whose ratio could leave the supported range
package pipeline

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio/output"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/ratecontrol"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/resample"
)

const (
	// Samples (not frames) per chunk in each sync mode
	BlockingChunkSamples    = 512
	NonblockingChunkSamples = 2048

	// maxBufSamples bounds any single chunk
	maxBufSamples = NonblockingChunkSamples * 2

	DefaultOutputRate      = 48000
	DefaultChannels        = 2
	DefaultSlowMotionRatio = 3.0
	DefaultMaxRatio        = 16.0
	DefaultQueueChunks     = 8
	DefaultQueueTimeout    = 50 * time.Millisecond
	DefaultRewindSamples   = maxBufSamples
)

var (
	// ErrInvalidConfig wraps every configuration problem New reports
	ErrInvalidConfig = errors.New("invalid pipeline config")
	// ErrClosed is returned by every method after Close
	ErrClosed = errors.New("pipeline closed")
	// ErrPartialFrame is returned for sample slices that split a frame
	ErrPartialFrame = errors.New("sample count is not a whole number of frames")
)

// Filter processes interleaved float samples in place before resampling
type Filter func(samples []float32, channels int)

// Recorder receives every submitted chunk, even while audio is disabled
type Recorder interface {
	RecordSamples(samples []int16) error
}

// Config holds pipeline configuration
type Config struct {
	// OutputRate is the device sample rate in Hz (default: 48000)
	OutputRate int

	// InputRate is the producer's sample rate in Hz; must be positive
	InputRate float64

	// Channels is the interleaved channel count (default: 2)
	Channels int

	// Driver names the output backend; unknown names fall back to the first registered driver
	Driver string

	// DriverFactory, when set, is used instead of looking Driver up
	DriverFactory output.Factory

	// Device is passed to the driver; empty selects its default
	Device string

	// LatencyMs is the driver buffer length hint
	LatencyMs int

	// Resampler names the implementation; empty picks one by Quality
	Resampler string
	Quality   resample.Quality

	// RateControl enables the proportional ratio controller
	RateControl bool

	// RateControlDelta is the controller gain, typically ratecontrol.DefaultDelta.
	// Zero keeps the ratio fixed at OutputRate/InputRate.
	RateControlDelta float64

	Sync SyncMode

	// Threaded moves driver writes to a consumer goroutine
	Threaded bool

	// QueueChunks is the threaded queue capacity (default: 8)
	QueueChunks int

	// QueueTimeout bounds how long a blocking Submit waits for queue space (default: 50ms)
	QueueTimeout time.Duration

	// Mute starts the pipeline muted
	Mute bool

	// RewindSize is the rewind buffer capacity in samples (default: 4096)
	RewindSize int

	// SlowMotionRatio stretches output while slow motion is on (default: 3)
	SlowMotionRatio float64

	// MaxRatio caps outputRate/inputRate (default: 16)
	MaxRatio float64

	// Volume is a linear gain applied after resampling (default: 1)
	Volume float32

	// StatsCapacity is the saturation ring size, a power of two (default: 1024)
	StatsCapacity int

	Filter   Filter
	Recorder Recorder
	Logger   *log.Logger
}

// withDefaults fills zero fields
func (c Config) withDefaults() Config {
	if c.OutputRate == 0 {
		c.OutputRate = DefaultOutputRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.QueueChunks == 0 {
		c.QueueChunks = DefaultQueueChunks
	}
	if c.QueueTimeout == 0 {
		c.QueueTimeout = DefaultQueueTimeout
	}
	if c.RewindSize == 0 {
		c.RewindSize = DefaultRewindSamples
	}
	if c.SlowMotionRatio == 0 {
		c.SlowMotionRatio = DefaultSlowMotionRatio
	}
	if c.MaxRatio == 0 {
		c.MaxRatio = DefaultMaxRatio
	}
	if c.Volume == 0 {
		c.Volume = 1
	}
	if c.StatsCapacity == 0 {
		c.StatsCapacity = ratecontrol.DefaultRingCapacity
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// OriginalRatio returns outputRate/inputRate
func (c Config) OriginalRatio() float64 {
	return float64(c.OutputRate) / c.InputRate
}

// Validate reports the first problem with c after defaults are applied
func (c Config) Validate() error {
	c = c.withDefaults()

	switch {
	case !(c.InputRate > 0):
		return fmt.Errorf("%w: input rate must be positive, got %.3f Hz", ErrInvalidConfig, c.InputRate)
	case c.OutputRate < 0:
		return fmt.Errorf("%w: output rate must be positive, got %d Hz", ErrInvalidConfig, c.OutputRate)
	case c.Channels < 1:
		return fmt.Errorf("%w: channels must be at least 1, got %d", ErrInvalidConfig, c.Channels)
	case c.RateControlDelta < 0 || c.RateControlDelta >= 1:
		return fmt.Errorf("%w: rate control delta must be in [0, 1), got %g", ErrInvalidConfig, c.RateControlDelta)
	case c.MaxRatio <= 0:
		return fmt.Errorf("%w: max ratio must be positive, got %g", ErrInvalidConfig, c.MaxRatio)
	case c.SlowMotionRatio < 1:
		return fmt.Errorf("%w: slow motion ratio must be at least 1, got %g", ErrInvalidConfig, c.SlowMotionRatio)
	case c.QueueChunks < 1:
		return fmt.Errorf("%w: queue must hold at least one chunk, got %d", ErrInvalidConfig, c.QueueChunks)
	case c.QueueTimeout < 0:
		return fmt.Errorf("%w: queue timeout must not be negative", ErrInvalidConfig)
	case c.RewindSize < 0:
		return fmt.Errorf("%w: rewind size must not be negative", ErrInvalidConfig)
	case c.StatsCapacity <= 0 || c.StatsCapacity&(c.StatsCapacity-1) != 0:
		return fmt.Errorf("%w: stats capacity must be a power of two, got %d", ErrInvalidConfig, c.StatsCapacity)
	case c.Channels > BlockingChunkSamples:
		return fmt.Errorf("%w: too many channels: %d", ErrInvalidConfig, c.Channels)
	}

	maxRatio := c.OriginalRatio()
	if c.RateControl {
		maxRatio *= 1 + c.RateControlDelta
	}
	if maxRatio >= c.MaxRatio {
		return fmt.Errorf("%w: ratio %.4f (%d Hz / %.3f Hz) reaches the %g cap",
			ErrInvalidConfig, maxRatio, c.OutputRate, c.InputRate, c.MaxRatio)
	}
	return nil
}

// chunkSamples returns the chunk size for mode rounded down to whole frames
func chunkSamples(mode SyncMode, channels int) int {
	n := BlockingChunkSamples
	if mode == SyncNonblocking {
		n = NonblockingChunkSamples
	}
	return n - n%channels
}
