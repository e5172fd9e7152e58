// ABOUTME: Per-chunk processing path shared by direct and threaded pipelines
// ABOUTME: Converts, filters, rate-controls, resamples and writes one chunk at a time
package pipeline

import (
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/output"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/ratecontrol"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/resample"
)

// shared holds everything the producer and the engine goroutine both touch
type shared struct {
	ratio       atomic.Uint64 // math.Float64bits of the current ratio
	volume      atomic.Uint32 // math.Float32bits of the gain
	slowMotion  atomic.Bool
	nonblock    atomic.Bool
	dropped     atomic.Int64 // chunks
	shortWrites atomic.Int64 // frames
	written     atomic.Int64 // output frames accepted by the driver
	lastFree    atomic.Int64 // frames, -1 until the first reading
}

func (s *shared) loadRatio() float64 {
	return math.Float64frombits(s.ratio.Load())
}

func (s *shared) storeRatio(r float64) {
	s.ratio.Store(math.Float64bits(r))
}

func (s *shared) loadVolume() float32 {
	return math.Float32frombits(s.volume.Load())
}

// engine owns the driver, resampler and controller. Only one goroutine
// calls its methods at a time.
type engine struct {
	cfg    Config
	shared *shared
	log    *log.Logger

	driver     output.Driver
	avail      output.WriteAvailabler
	format     audio.SampleFormat
	frameBytes int

	resampler     resample.Resampler
	resamplerName string
	controller    *ratecontrol.Controller
	ring          *ratecontrol.SaturationRing

	// driver buffer in frames, captured once when the driver opens
	bufferFrames int

	floatBuf []float32
	outBuf   []float32
	byteBuf  []byte

	muted bool
}

func newEngine(cfg Config, drv output.Driver, sh *shared, logger *log.Logger) *engine {
	e := &engine{
		cfg:        cfg,
		shared:     sh,
		log:        logger,
		driver:     drv,
		format:     output.SampleFormat(drv),
		frameBytes: cfg.Channels * output.SampleFormat(drv).BytesPerSample(),
		muted:      cfg.Mute,
	}

	outCap := resample.OutputCapacity(maxBufSamples, cfg.Channels, cfg.MaxRatio*cfg.SlowMotionRatio)
	e.floatBuf = make([]float32, maxBufSamples)
	e.outBuf = make([]float32, outCap)
	e.byteBuf = make([]byte, outCap*e.format.BytesPerSample())

	if cfg.RateControl {
		e.initRateControl()
	}
	return e
}

func (e *engine) initRateControl() {
	avail, okAvail := e.driver.(output.WriteAvailabler)
	sizer, okSize := e.driver.(output.BufferSizer)
	if !okAvail || !okSize || sizer.BufferSize()/e.frameBytes < 2 {
		e.log.Printf("Audio rate control was desired, but driver does not support needed features.")
		return
	}

	ring, err := ratecontrol.NewSaturationRing(e.cfg.StatsCapacity)
	if err != nil {
		// Validate already checked the capacity
		e.log.Printf("Audio rate control disabled: %v", err)
		return
	}

	e.avail = avail
	e.bufferFrames = sizer.BufferSize() / e.frameBytes
	e.ring = ring
	e.controller = ratecontrol.NewController(e.cfg.OriginalRatio(), e.cfg.RateControlDelta, ring)
}

func (e *engine) rateControlled() bool {
	return e.controller != nil
}

func (e *engine) allocResampler(name string) error {
	r, err := resample.Realloc(e.resampler, name, e.cfg.Channels, e.shared.loadRatio(), e.cfg.Quality)
	e.resampler = r
	if err != nil {
		return fmt.Errorf("failed to initialize resampler %q: %w", name, err)
	}
	if name == "" {
		name = e.cfg.Quality.DefaultResampler()
	}
	e.resamplerName = name
	return nil
}

// process runs one chunk through the pipeline and writes it to the driver
func (e *engine) process(samples []int16) error {
	if e.muted || len(samples) == 0 {
		return nil
	}

	in := audio.Int16ToFloat(e.floatBuf, samples)
	if e.cfg.Filter != nil {
		e.cfg.Filter(in, e.cfg.Channels)
	}

	ratio := e.shared.loadRatio()
	if e.controller != nil {
		free := e.avail.WriteAvailable() / e.frameBytes
		ratio = e.controller.Update(free, e.bufferFrames)
		e.shared.storeRatio(ratio)
		e.shared.lastFree.Store(int64(free))
	}
	if e.shared.slowMotion.Load() {
		ratio *= e.cfg.SlowMotionRatio
	}

	n := e.resampler.Process(e.outBuf, in, ratio)
	out := e.outBuf[:n]
	audio.Gain(out, e.shared.loadVolume())

	var buf []byte
	if e.format == audio.FormatFloat32 {
		buf = audio.PutFloat32LE(e.byteBuf, out)
	} else {
		buf = audio.PutInt16LE(e.byteBuf, out)
	}
	return e.write(buf)
}

// write hands buf to the driver. Blocking mode retries until the driver
// stops making progress; nonblocking mode writes once and counts the rest.
func (e *engine) write(buf []byte) error {
	for len(buf) > 0 {
		n, err := e.driver.Write(buf)
		if n > 0 {
			e.shared.written.Add(int64(n / e.frameBytes))
			buf = buf[n:]
		}
		if err != nil {
			return fmt.Errorf("audio driver write failed: %w", err)
		}
		if n == 0 || e.shared.nonblock.Load() {
			break
		}
	}
	if len(buf) > 0 {
		e.shared.shortWrites.Add(int64(len(buf) / e.frameBytes))
	}
	return nil
}

func (e *engine) setMute(mute bool) error {
	if mute == e.muted {
		return nil
	}
	if mute {
		e.muted = true
		return e.driver.Stop()
	}
	if err := e.driver.Start(); err != nil {
		return err
	}
	e.muted = false
	return nil
}

func (e *engine) setNonblocking(nonblock bool) {
	e.driver.SetNonblocking(nonblock)
}

// summarize returns the saturation summary, if there is enough data
func (e *engine) summarize() (ratecontrol.Summary, bool) {
	if e.ring == nil {
		return ratecontrol.Summary{}, false
	}
	return e.ring.Summarize(e.bufferFrames)
}

// close releases buffers, then the resampler, then the driver
func (e *engine) close() error {
	e.floatBuf, e.outBuf, e.byteBuf = nil, nil, nil

	if e.resampler != nil {
		e.resampler.Close()
		e.resampler = nil
	}

	var err error
	if e.driver != nil {
		err = e.driver.Close()
		e.driver = nil
	}
	return err
}
