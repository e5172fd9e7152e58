// ABOUTME: Pipeline orchestrator owning driver, resampler and rate controller
// ABOUTME: Public API for submitting audio and controlling playback
package pipeline

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio/output"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/ratecontrol"
	"github.com/google/uuid"
)

// Stats is a point-in-time snapshot of a pipeline
type Stats struct {
	ID            string
	State         State
	Driver        string
	Resampler     string
	Sync          SyncMode
	Threaded      bool
	RateControl   bool
	SlowMotion    bool
	Volume        float32
	OriginalRatio float64
	Ratio         float64
	ChunkSamples  int

	// BufferFill is the last measured driver fill in [0, 1], or -1 if unknown
	BufferFill float64

	Submitted   int64 // input frames
	Written     int64 // output frames accepted by the driver
	Dropped     int64 // chunks lost to a full queue
	ShortWrites int64 // output frames the driver did not take
	Queued      int

	// Summary is set once Close has computed the saturation statistics
	Summary *ratecontrol.Summary
}

// Pipeline is an adaptive audio output. Its methods are safe for concurrent
// use; audio calls are normally made from a single producer goroutine.
type Pipeline struct {
	cfg Config
	id  string
	log *log.Logger

	mu      sync.Mutex
	state   atomic.Int32
	closed  bool
	closing atomic.Bool

	// Components
	eng      *engine
	threaded *threadedSink
	shared   *shared

	driverName string
	resampler  atomic.Value // string

	// Producer-side buffers
	chunkSamples int
	pending      []int16
	rewind       []int16
	rewindPos    int
	recorder     Recorder

	submitted   atomic.Int64
	disableOnce sync.Once
	summary     atomic.Pointer[ratecontrol.Summary]
}

// New validates cfg, opens the driver and resampler and starts playback.
// Only configuration errors are returned: a driver or resampler that fails
// to open yields a pipeline in StateDisabled.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	p := &Pipeline{
		cfg:          cfg,
		id:           uuid.New().String(),
		log:          cfg.Logger,
		shared:       &shared{},
		chunkSamples: chunkSamples(cfg.Sync, cfg.Channels),
		pending:      make([]int16, 0, maxBufSamples),
		rewind:       make([]int16, cfg.RewindSize-cfg.RewindSize%cfg.Channels),
		recorder:     cfg.Recorder,
	}
	p.rewindPos = len(p.rewind)
	p.resampler.Store("")
	p.shared.storeRatio(cfg.OriginalRatio())
	p.shared.volume.Store(math.Float32bits(cfg.Volume))
	p.shared.nonblock.Store(cfg.Sync == SyncNonblocking)
	p.shared.lastFree.Store(-1)
	p.setState(StateInitializing)

	drv, err := p.openDriver()
	if err != nil {
		p.disable(err)
		return p, nil
	}
	if cfg.Sync == SyncNonblocking {
		drv.SetNonblocking(true)
	}

	p.eng = newEngine(cfg, drv, p.shared, p.log)
	if err := p.eng.allocResampler(cfg.Resampler); err != nil {
		p.disable(err)
		return p, nil
	}
	p.resampler.Store(p.eng.resamplerName)

	if cfg.Mute {
		p.setState(StateMuted)
	} else {
		if err := drv.Start(); err != nil {
			p.disable(fmt.Errorf("failed to start audio driver: %w", err))
			return p, nil
		}
		p.setState(StateActive)
	}

	if cfg.Threaded {
		p.threaded = newThreadedSink(p.eng, p.shared, cfg.QueueChunks, maxBufSamples, cfg.QueueTimeout, p.disable)
		p.threaded.start()
	}

	p.log.Printf("Audio pipeline %s: %.1f Hz -> %d Hz, %d ch via %s (resampler %s, ratio %.6f, rate control %v, %s%s)",
		p.id, cfg.InputRate, cfg.OutputRate, cfg.Channels, p.driverName, p.eng.resamplerName,
		cfg.OriginalRatio(), p.eng.rateControlled(), cfg.Sync, threadedSuffix(cfg.Threaded))
	return p, nil
}

func threadedSuffix(threaded bool) string {
	if threaded {
		return ", threaded"
	}
	return ""
}

func (p *Pipeline) openDriver() (output.Driver, error) {
	dcfg := output.Config{
		Device:     p.cfg.Device,
		SampleRate: p.cfg.OutputRate,
		Channels:   p.cfg.Channels,
		LatencyMs:  p.cfg.LatencyMs,
		Logger:     p.log,
	}

	if p.cfg.DriverFactory != nil {
		p.driverName = p.cfg.Driver
		if p.driverName == "" {
			p.driverName = "custom"
		}
		return p.cfg.DriverFactory(dcfg)
	}

	name, ok := output.Resolve(p.cfg.Driver)
	if !ok {
		if p.cfg.Driver != "" {
			p.log.Printf("Couldn't find any audio driver named %q", p.cfg.Driver)
			p.log.Printf("Available audio drivers are: %s", strings.Join(output.Names(), ", "))
		}
		if name == "" {
			return nil, output.ErrUnknownDriver
		}
		p.log.Printf("Going to default to first audio driver: %s", name)
	}
	p.driverName = name
	return output.Open(name, dcfg)
}

// disable logs err once and turns the pipeline into a no-op
func (p *Pipeline) disable(err error) {
	p.disableOnce.Do(func() {
		p.log.Printf("Audio pipeline %s: %v. Continuing without audio.", p.id, err)
	})
	for {
		s := State(p.state.Load())
		if s == StateStopped || s == StateUninitialized {
			return
		}
		if p.state.CompareAndSwap(int32(s), int32(StateDisabled)) {
			return
		}
	}
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
}

// State returns the current lifecycle state
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// ID identifies the pipeline in log lines
func (p *Pipeline) ID() string {
	return p.id
}

// Ratio returns the resampling ratio used for the most recent chunk
func (p *Pipeline) Ratio() float64 {
	return p.shared.loadRatio()
}

// OriginalRatio returns outputRate/inputRate
func (p *Pipeline) OriginalRatio() float64 {
	return p.cfg.OriginalRatio()
}

// Dropped returns the number of chunks lost to a full queue
func (p *Pipeline) Dropped() int64 {
	return p.shared.dropped.Load()
}

// ShortWrites returns the number of output frames the driver did not accept
func (p *Pipeline) ShortWrites() int64 {
	return p.shared.shortWrites.Load()
}

// Submit plays interleaved int16 samples. Audio errors are logged and
// disable the pipeline rather than being returned.
func (p *Pipeline) Submit(samples []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(samples)%p.cfg.Channels != 0 {
		return fmt.Errorf("%w: %d samples, %d channels", ErrPartialFrame, len(samples), p.cfg.Channels)
	}
	return p.submitLocked(samples)
}

func (p *Pipeline) submitLocked(samples []int16) error {
	for len(samples) > 0 {
		n := min(len(samples), p.chunkSamples)
		if err := p.flushLocked(samples[:n]); err != nil {
			return err
		}
		samples = samples[n:]
	}
	return nil
}

// flushLocked handles one chunk of at most maxBufSamples samples
func (p *Pipeline) flushLocked(chunk []int16) error {
	if p.recorder != nil {
		if err := p.recorder.RecordSamples(chunk); err != nil {
			p.log.Printf("Audio pipeline %s: recorder failed, recording stopped: %v", p.id, err)
			p.recorder = nil
		}
	}

	if p.State() != StateActive {
		return nil
	}
	p.submitted.Add(int64(len(chunk) / p.cfg.Channels))

	if p.threaded != nil {
		return p.threaded.submit(chunk)
	}
	if err := p.eng.process(chunk); err != nil {
		p.disable(err)
	}
	return nil
}

// Sample queues one stereo frame and flushes once a chunk has accumulated
func (p *Pipeline) Sample(left, right int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.cfg.Channels != 2 {
		return fmt.Errorf("%w: Sample needs 2 channels, have %d", ErrPartialFrame, p.cfg.Channels)
	}

	p.pending = append(p.pending, left, right)
	if len(p.pending) < p.chunkSamples {
		return nil
	}
	err := p.flushLocked(p.pending)
	p.pending = p.pending[:0]
	return err
}

// SubmitRewind stores frames in reverse so they play backwards on FlushRewind.
// Frames beyond the rewind buffer capacity are dropped.
func (p *Pipeline) SubmitRewind(samples []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	ch := p.cfg.Channels
	if len(samples)%ch != 0 {
		return fmt.Errorf("%w: %d samples, %d channels", ErrPartialFrame, len(samples), ch)
	}

	for i := 0; i+ch <= len(samples) && p.rewindPos >= ch; i += ch {
		p.rewindPos -= ch
		copy(p.rewind[p.rewindPos:p.rewindPos+ch], samples[i:i+ch])
	}
	return nil
}

// FlushRewind plays and clears the rewind buffer
func (p *Pipeline) FlushRewind() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	err := p.submitLocked(p.rewind[p.rewindPos:])
	p.rewindPos = len(p.rewind)
	return err
}

// exec runs fn against the engine on whichever goroutine owns it
func (p *Pipeline) exec(fn func(*engine) error) error {
	if p.threaded != nil {
		return p.threaded.do(fn)
	}
	return fn(p.eng)
}

// SetMute stops or restarts the driver. The ratio and statistics are left as they are.
func (p *Pipeline) SetMute(mute bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	state := p.State()
	if state != StateActive && state != StateMuted {
		return nil
	}
	if (state == StateMuted) == mute {
		return nil
	}

	err := p.exec(func(e *engine) error { return e.setMute(mute) })
	switch {
	case errors.Is(err, ErrClosed):
		return err
	case err != nil && !mute:
		p.disable(fmt.Errorf("failed to unmute audio driver: %w", err))
		return nil
	case err != nil:
		p.log.Printf("Audio pipeline %s: failed to stop driver: %v", p.id, err)
	}

	if mute {
		p.setState(StateMuted)
	} else {
		p.setState(StateActive)
	}
	return nil
}

// Muted reports whether audio is muted
func (p *Pipeline) Muted() bool {
	return p.State() == StateMuted
}

// SetNonblocking switches between paced and fire-and-forget output,
// e.g. while fast-forwarding.
func (p *Pipeline) SetNonblocking(nonblock bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	mode := SyncBlocking
	if nonblock {
		mode = SyncNonblocking
	}
	p.chunkSamples = chunkSamples(mode, p.cfg.Channels)
	p.shared.nonblock.Store(nonblock)

	if p.eng == nil || p.State() == StateDisabled {
		return nil
	}
	return p.exec(func(e *engine) error {
		e.setNonblocking(nonblock)
		return nil
	})
}

// SetSlowMotion stretches output by Config.SlowMotionRatio while on
func (p *Pipeline) SetSlowMotion(on bool) {
	p.shared.slowMotion.Store(on)
}

// SetVolume sets the linear output gain
func (p *Pipeline) SetVolume(gain float32) {
	if gain < 0 {
		gain = 0
	}
	p.shared.volume.Store(math.Float32bits(gain))
}

// Volume returns the linear output gain
func (p *Pipeline) Volume() float32 {
	return p.shared.loadVolume()
}

// SetResampler swaps the resampler implementation, dropping its history.
// If the new one cannot be allocated audio is disabled.
func (p *Pipeline) SetResampler(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.eng == nil || p.State() == StateDisabled {
		return nil
	}

	err := p.exec(func(e *engine) error { return e.allocResampler(name) })
	if errors.Is(err, ErrClosed) {
		return err
	}
	if err != nil {
		p.disable(err)
		return err
	}
	p.resampler.Store(p.eng.resamplerName)
	return nil
}

// Stats returns a snapshot of the pipeline
func (p *Pipeline) Stats() Stats {
	s := Stats{
		ID:            p.id,
		State:         p.State(),
		Driver:        p.driverName,
		Resampler:     p.resampler.Load().(string),
		Sync:          SyncBlocking,
		Threaded:      p.cfg.Threaded,
		RateControl:   p.eng != nil && p.eng.rateControlled(),
		SlowMotion:    p.shared.slowMotion.Load(),
		Volume:        p.shared.loadVolume(),
		OriginalRatio: p.cfg.OriginalRatio(),
		Ratio:         p.shared.loadRatio(),
		BufferFill:    -1,
		Submitted:     p.submitted.Load(),
		Written:       p.shared.written.Load(),
		Dropped:       p.shared.dropped.Load(),
		ShortWrites:   p.shared.shortWrites.Load(),
		Summary:       p.summary.Load(),
	}
	if p.shared.nonblock.Load() {
		s.Sync = SyncNonblocking
	}
	s.ChunkSamples = chunkSamples(s.Sync, p.cfg.Channels)
	if p.threaded != nil {
		s.Queued = p.threaded.queued()
	}
	if free := p.shared.lastFree.Load(); free >= 0 && s.RateControl && p.eng.bufferFrames > 0 {
		s.BufferFill = 1 - float64(free)/float64(p.eng.bufferFrames)
	}
	return s
}

// Close stops playback, logs the saturation summary and releases the
// resampler and then the driver. Further calls return nil.
func (p *Pipeline) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}

	// Wake a producer or consumer stuck on the device before taking the lock
	if p.threaded != nil {
		p.threaded.stop()
	} else if p.eng != nil && p.eng.driver != nil {
		p.shared.nonblock.Store(true)
		p.eng.driver.SetNonblocking(true)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.setState(StateStopped)

	var err error
	if p.eng != nil {
		if summary, ok := p.eng.summarize(); ok {
			p.log.Printf("Audio pipeline %s: %s", p.id, summary)
			p.summary.Store(&summary)
		}
		err = p.eng.close()
	}

	p.pending = nil
	p.rewind = nil
	p.setState(StateUninitialized)
	p.log.Printf("Audio pipeline %s closed (%d dropped chunks, %d short-write frames)",
		p.id, p.shared.dropped.Load(), p.shared.shortWrites.Load())
	return err
}
