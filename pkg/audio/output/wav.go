// ABOUTME: WAV file output driver
// ABOUTME: Writes the pipeline output to a 16-bit PCM WAV file as fast as it arrives
package output

import (
	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/wavfile"
)

// DefaultWAVPath is used when the wav driver gets no device
const DefaultWAVPath = "audiopipe-out.wav"

// wavDriver has no notion of free space, so rate control stays off
type wavDriver struct {
	w       *wavfile.Writer
	scratch []int16
	closed  bool
}

func newWAV(cfg Config) (Driver, error) {
	path := cfg.Device
	if path == "" {
		path = DefaultWAVPath
	}

	w, err := wavfile.Create(path, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	cfg.logger().Printf("Audio output initialized: %dHz, %d channels (wav: %s)", cfg.SampleRate, cfg.Channels, path)
	return &wavDriver{w: w}, nil
}

func (d *wavDriver) Write(p []byte) (int, error) {
	if d.closed {
		return 0, ErrNotOpen
	}

	n := len(p) / 2
	if cap(d.scratch) < n {
		d.scratch = make([]int16, n)
	}
	samples := audio.Int16FromBytes(d.scratch[:n], p)
	if err := d.w.WriteSamples(samples); err != nil {
		return 0, err
	}
	return n * 2, nil
}

func (d *wavDriver) Start() error { return nil }

func (d *wavDriver) Stop() error { return nil }

func (d *wavDriver) SetNonblocking(bool) {}

func (d *wavDriver) UseFloat() bool {
	return false
}

func (d *wavDriver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.w.Close()
}
