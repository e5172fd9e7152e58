// ABOUTME: Tests for the direct pipeline path
// ABOUTME: Covers validation, rate control, mute, chunking, rewind and shutdown
package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRatio = 48000.0 / 44100.0

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero input rate", func(c *Config) { c.InputRate = 0 }},
		{"negative input rate", func(c *Config) { c.InputRate = -44100 }},
		{"negative channels", func(c *Config) { c.Channels = -1 }},
		{"delta of one", func(c *Config) { c.RateControl = true; c.RateControlDelta = 1 }},
		{"negative delta", func(c *Config) { c.RateControl = true; c.RateControlDelta = -0.1 }},
		{"ratio at cap", func(c *Config) { c.InputRate = 3000 }},
		{"ratio at cap with gain", func(c *Config) { c.InputRate = 3100; c.RateControl = true; c.RateControlDelta = 0.05 }},
		{"stats capacity", func(c *Config) { c.StatsCapacity = 1000 }},
		{"slow motion below one", func(c *Config) { c.SlowMotionRatio = 0.5 }},
		{"negative queue", func(c *Config) { c.QueueChunks = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(newFake())
			tt.modify(&cfg)

			p, err := New(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
			assert.Nil(t, p)
		})
	}
}

func TestValidateAcceptsRatioBelowCap(t *testing.T) {
	cfg := testConfig(newFake())
	cfg.InputRate = 3100
	cfg.RateControl = true
	assert.NoError(t, cfg.Validate())
}

func TestRatioStartsAtOriginal(t *testing.T) {
	d := newFake()
	cfg := testConfig(d)
	cfg.RateControl = true

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, StateActive, p.State())
	assert.Equal(t, testRatio, p.Ratio())
	assert.Equal(t, testRatio, p.OriginalRatio())

	_, starts, _, _ := d.snapshot()
	assert.Equal(t, 1, starts)
}

func TestRatioConstantWithoutRateControl(t *testing.T) {
	d := newFake()
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	for _, free := range []int{0, 1024, 4096, 2048} {
		d.setFree(free)
		require.NoError(t, p.Submit(frames(256)))
		assert.Equal(t, testRatio, p.Ratio())
	}
	assert.False(t, p.Stats().RateControl)
}

func TestRateControlFollowsBufferFill(t *testing.T) {
	d := newFake()
	cfg := testConfig(d)
	cfg.RateControl = true
	cfg.RateControlDelta = 0.005

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	tests := []struct {
		name string
		free int // bytes
		want float64
	}{
		{"empty buffer speeds up", 4096, testRatio * 1.005},
		{"full buffer slows down", 0, testRatio * 0.995},
		{"half full holds", 2048, testRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.setFree(tt.free)
			require.NoError(t, p.Submit(frames(256)))
			assert.InDelta(t, tt.want, p.Ratio(), 1e-12)
		})
	}

	stats := p.Stats()
	assert.True(t, stats.RateControl)
	assert.InDelta(t, 0.5, stats.BufferFill, 1e-9)
	assert.Equal(t, uint64(3), p.eng.ring.Count())
}

func TestEmptyResamplerUsesDefaultQuality(t *testing.T) {
	cfg := testConfig(newFake())
	cfg.Resampler = ""

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, StateActive, p.State())
	assert.Equal(t, "linear", p.Stats().Resampler)
}

func TestRateControlZeroGainKeepsRatio(t *testing.T) {
	d := newFake()
	cfg := testConfig(d)
	cfg.RateControl = true
	cfg.RateControlDelta = 0

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	for _, free := range []int{0, 1024, 2048, 3072, 4096} {
		d.setFree(free)
		require.NoError(t, p.Submit(frames(256)))
		assert.Equal(t, testRatio, p.Ratio(), "free %d", free)
	}

	stats := p.Stats()
	assert.True(t, stats.RateControl)
	assert.Equal(t, uint64(5), p.eng.ring.Count())
}

func TestRateControlNeedsDriverSupport(t *testing.T) {
	logger, logs := captureLogger()
	cfg := testConfig(bare(newFake()))
	cfg.RateControl = true
	cfg.Logger = logger

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Submit(frames(256)))
	assert.False(t, p.Stats().RateControl)
	assert.Equal(t, testRatio, p.Ratio())
	assert.Contains(t, logs.String(), "driver does not support needed features")
}

func TestNamedDriverFromRegistry(t *testing.T) {
	cfg := testConfig(nil)
	cfg.DriverFactory = nil
	cfg.Driver = "null"

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, StateActive, p.State())
	assert.Equal(t, "null", p.Stats().Driver)
	assert.NoError(t, p.Submit(frames(512)))
}

func TestMuteLeavesRatioAndStatsUntouched(t *testing.T) {
	d := newFake()
	cfg := testConfig(d)
	cfg.RateControl = true

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	d.setFree(4096)
	require.NoError(t, p.Submit(frames(256)))
	ratio := p.Ratio()
	count := p.eng.ring.Count()
	writes, _, _, _ := d.snapshot()

	require.NoError(t, p.SetMute(true))
	assert.Equal(t, StateMuted, p.State())
	assert.True(t, p.Muted())

	d.setFree(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(frames(256)))
	}

	mutedWrites, starts, stops, _ := d.snapshot()
	assert.Equal(t, writes, mutedWrites)
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, ratio, p.Ratio())
	assert.Equal(t, count, p.eng.ring.Count())

	require.NoError(t, p.SetMute(false))
	assert.Equal(t, StateActive, p.State())
	_, starts, _, _ = d.snapshot()
	assert.Equal(t, 2, starts)

	require.NoError(t, p.Submit(frames(256)))
	assert.InDelta(t, testRatio*0.995, p.Ratio(), 1e-12)
}

func TestMuteIsIdempotent(t *testing.T) {
	d := newFake()
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SetMute(true))
	require.NoError(t, p.SetMute(true))
	_, _, stops, _ := d.snapshot()
	assert.Equal(t, 1, stops)
}

func TestStartMutedDoesNotStartDriver(t *testing.T) {
	d := newFake()
	cfg := testConfig(d)
	cfg.Mute = true

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, StateMuted, p.State())
	_, starts, _, _ := d.snapshot()
	assert.Equal(t, 0, starts)

	require.NoError(t, p.SetMute(false))
	_, starts, _, _ = d.snapshot()
	assert.Equal(t, 1, starts)
}

func TestUnmuteFailureDisables(t *testing.T) {
	d := newFake()
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SetMute(true))
	d.mu.Lock()
	d.startErr = errors.New("device busy")
	d.mu.Unlock()

	assert.NoError(t, p.SetMute(false))
	assert.Equal(t, StateDisabled, p.State())
}

func TestDriverOpenFailureDisables(t *testing.T) {
	logger, logs := captureLogger()
	cfg := testConfig(nil)
	cfg.DriverFactory = failingFactory
	cfg.Logger = logger

	p, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, StateDisabled, p.State())
	assert.NoError(t, p.Submit(frames(256)))
	assert.NoError(t, p.SetMute(true))
	assert.NoError(t, p.SetNonblocking(true))
	assert.NoError(t, p.SetResampler("cubic"))
	assert.Equal(t, testRatio, p.Ratio())
	assert.NoError(t, p.Close())
	assert.Contains(t, logs.String(), "device unplugged")
	assert.Contains(t, logs.String(), "Continuing without audio")
}

func TestResamplerFailureDisables(t *testing.T) {
	d := newFake()
	cfg := testConfig(d)
	cfg.Resampler = "bogus"

	p, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, StateDisabled, p.State())
	assert.NoError(t, p.Submit(frames(256)))

	writes, starts, _, _ := d.snapshot()
	assert.Equal(t, 0, writes)
	assert.Equal(t, 0, starts)

	require.NoError(t, p.Close())
	assert.True(t, d.isClosed())
}

func TestSubmitSplitsIntoChunks(t *testing.T) {
	d := newFake()
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	// 1280 samples in blocking mode: 512 + 512 + 256
	require.NoError(t, p.Submit(frames(640)))

	writes, _, _, written := d.snapshot()
	assert.Equal(t, 3, writes)
	assert.Greater(t, written, 0)
	assert.Equal(t, 0, written%4)
	assert.Equal(t, int64(640), p.Stats().Submitted)
	assert.Equal(t, int64(written/4), p.Stats().Written)
}

func TestSubmitRejectsPartialFrames(t *testing.T) {
	p, err := New(testConfig(newFake()))
	require.NoError(t, err)
	defer p.Close()

	err = p.Submit([]int16{1, 2, 3})
	assert.True(t, errors.Is(err, ErrPartialFrame))
}

func TestBlockingWriteRetriesShortWrites(t *testing.T) {
	d := newFake()
	d.accept = 400
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Submit(frames(256)))

	writes, _, _, written := d.snapshot()
	assert.Greater(t, writes, 1)
	assert.Equal(t, int64(0), p.ShortWrites())
	assert.Equal(t, int64(written/4), p.Stats().Written)
}

func TestNonblockingWriteCountsShortWrites(t *testing.T) {
	d := newFake()
	d.accept = 400
	cfg := testConfig(d)
	cfg.Sync = SyncNonblocking

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Submit(frames(1024)))

	writes, _, _, written := d.snapshot()
	assert.Equal(t, 1, writes)
	assert.Equal(t, 400, written)
	assert.Greater(t, p.ShortWrites(), int64(0))
	assert.Equal(t, int64(100), p.Stats().Written)
	assert.True(t, d.nonblock)
}

func TestWriteErrorDisables(t *testing.T) {
	logger, logs := captureLogger()
	d := newFake()
	d.writeErr = errors.New("stream lost")
	cfg := testConfig(d)
	cfg.Logger = logger

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.NoError(t, p.Submit(frames(256)))
	assert.Equal(t, StateDisabled, p.State())
	assert.NoError(t, p.Submit(frames(256)))

	writes, _, _, _ := d.snapshot()
	assert.Equal(t, 1, writes)
	assert.Contains(t, logs.String(), "stream lost")
}

type sliceRecorder struct {
	mu      sync.Mutex
	samples []int16
}

func (r *sliceRecorder) RecordSamples(s []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s...)
	return nil
}

func TestRecorderSeesAudioWhileDisabled(t *testing.T) {
	rec := &sliceRecorder{}
	cfg := testConfig(nil)
	cfg.DriverFactory = failingFactory
	cfg.Recorder = rec

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	in := frames(700)
	require.NoError(t, p.Submit(in))
	assert.Equal(t, in, rec.samples)
}

func TestFloatDriverGetsFloatFrames(t *testing.T) {
	d := newFake()
	d.float = true
	d.size = 8192
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Submit(frames(256)))
	_, _, _, written := d.snapshot()
	assert.Greater(t, written, 0)
	assert.Equal(t, 0, written%8)
}

func TestVolumeScalesOutput(t *testing.T) {
	d := newFake()
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	p.SetVolume(0)
	assert.Equal(t, float32(0), p.Volume())
	require.NoError(t, p.Submit(frames(256)))

	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.written)
	for i, b := range d.written {
		require.Zero(t, b, "byte %d", i)
	}
}

func TestSlowMotionStretchesOutput(t *testing.T) {
	d := newFake()
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Submit(frames(256)))
	_, _, _, normal := d.snapshot()

	p.SetSlowMotion(true)
	require.NoError(t, p.Submit(frames(256)))
	_, _, _, total := d.snapshot()
	slow := total - normal

	assert.InDelta(t, 3.0, float64(slow)/float64(normal), 0.05)
	assert.True(t, p.Stats().SlowMotion)
	assert.Equal(t, testRatio, p.Ratio())
}

func TestRewindReversesFrames(t *testing.T) {
	rec := &sliceRecorder{}
	cfg := testConfig(newFake())
	cfg.Recorder = rec

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SubmitRewind([]int16{1, 2, 3, 4}))
	require.NoError(t, p.SubmitRewind([]int16{5, 6}))
	require.NoError(t, p.FlushRewind())
	assert.Equal(t, []int16{5, 6, 3, 4, 1, 2}, rec.samples)

	// flushing again plays nothing
	require.NoError(t, p.FlushRewind())
	assert.Len(t, rec.samples, 6)
}

func TestRewindDropsBeyondCapacity(t *testing.T) {
	rec := &sliceRecorder{}
	cfg := testConfig(newFake())
	cfg.Recorder = rec
	cfg.RewindSize = 4

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SubmitRewind([]int16{1, 2, 3, 4, 5, 6}))
	require.NoError(t, p.FlushRewind())
	assert.Equal(t, []int16{3, 4, 1, 2}, rec.samples)
}

func TestSampleFlushesAtChunkSize(t *testing.T) {
	d := newFake()
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < BlockingChunkSamples/2-1; i++ {
		require.NoError(t, p.Sample(int16(i), int16(-i)))
	}
	writes, _, _, _ := d.snapshot()
	assert.Equal(t, 0, writes)

	require.NoError(t, p.Sample(1, 1))
	writes, _, _, _ = d.snapshot()
	assert.Equal(t, 1, writes)
}

func TestSetNonblockingSwitchesChunkSize(t *testing.T) {
	d := newFake()
	p, err := New(testConfig(d))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, BlockingChunkSamples, p.Stats().ChunkSamples)

	require.NoError(t, p.SetNonblocking(true))
	stats := p.Stats()
	assert.Equal(t, SyncNonblocking, stats.Sync)
	assert.Equal(t, NonblockingChunkSamples, stats.ChunkSamples)
	assert.True(t, d.nonblock)

	// one 2048-sample chunk
	require.NoError(t, p.Submit(frames(1024)))
	writes, _, _, _ := d.snapshot()
	assert.Equal(t, 1, writes)
}

func TestSetResampler(t *testing.T) {
	p, err := New(testConfig(newFake()))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "linear", p.Stats().Resampler)
	require.NoError(t, p.SetResampler("cubic"))
	assert.Equal(t, "cubic", p.Stats().Resampler)
	require.NoError(t, p.Submit(frames(256)))

	assert.Error(t, p.SetResampler("bogus"))
	assert.Equal(t, StateDisabled, p.State())
}

func TestCloseLogsSummaryAndReleases(t *testing.T) {
	logger, logs := captureLogger()
	d := newFake()
	cfg := testConfig(d)
	cfg.RateControl = true
	cfg.Logger = logger

	p, err := New(cfg)
	require.NoError(t, err)

	for _, free := range []int{4096, 1024, 2048, 3072} {
		d.setFree(free)
		require.NoError(t, p.Submit(frames(256)))
	}

	require.NoError(t, p.Close())
	assert.True(t, d.isClosed())
	assert.Equal(t, StateUninitialized, p.State())
	assert.Contains(t, logs.String(), "Average audio buffer saturation")
	assert.Contains(t, logs.String(), p.ID())

	stats := p.Stats()
	require.NotNil(t, stats.Summary)
	assert.Equal(t, 3, stats.Summary.Samples)
	// free 1024, 2048, 3072 bytes of 4096 -> 75%, 50%, 25% full
	assert.InDelta(t, 0.5, stats.Summary.MeanFill, 1e-9)

	assert.NoError(t, p.Close())
	assert.ErrorIs(t, p.Submit(frames(1)), ErrClosed)
	assert.ErrorIs(t, p.SetMute(true), ErrClosed)
	assert.ErrorIs(t, p.Sample(1, 1), ErrClosed)
	assert.ErrorIs(t, p.FlushRewind(), ErrClosed)
}

func TestSyncModeText(t *testing.T) {
	var m SyncMode
	require.NoError(t, m.UnmarshalText([]byte("nonblocking")))
	assert.Equal(t, SyncNonblocking, m)

	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "nonblocking", string(text))

	assert.Error(t, m.UnmarshalText([]byte("sometimes")))
	assert.Equal(t, "disabled", StateDisabled.String())
}
