// ABOUTME: Oto-based audio output driver
// ABOUTME: Feeds a pull-model oto player from a blocking float32 ring
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoDeviceBufferMs is how much audio oto itself keeps queued ahead of the device
const otoDeviceBufferMs = 10

// oto allows a single context per process
var otoShared struct {
	once       sync.Once
	ctx        *oto.Context
	err        error
	sampleRate int
	channels   int
}

func sharedOtoContext(sampleRate, channels int) (*oto.Context, error) {
	otoShared.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   otoDeviceBufferMs * time.Millisecond,
		})
		if err != nil {
			otoShared.err = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoShared.ctx = ctx
		otoShared.sampleRate = sampleRate
		otoShared.channels = channels
	})

	if otoShared.err != nil {
		return nil, otoShared.err
	}
	// oto cannot be reinitialized with a different format
	if otoShared.sampleRate != sampleRate || otoShared.channels != channels {
		return nil, fmt.Errorf("oto context already open at %dHz %dch, cannot switch to %dHz %dch",
			otoShared.sampleRate, otoShared.channels, sampleRate, channels)
	}
	return otoShared.ctx, nil
}

// otoDriver writes into a ring that the oto player drains
type otoDriver struct {
	ring   *ring
	player *oto.Player
	closed bool
}

// otoReader adapts the ring to io.Reader; it always fills the whole buffer
type otoReader struct{ r *ring }

func (o otoReader) Read(p []byte) (int, error) {
	o.r.Read(p)
	return len(p), nil
}

func newOto(cfg Config) (Driver, error) {
	ctx, err := sharedOtoContext(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	if cfg.Device != "" {
		cfg.logger().Printf("oto: device selection not supported, ignoring %q", cfg.Device)
	}

	frameBytes := cfg.Channels * 4
	r := newRing(cfg.bufferBytes(frameBytes))
	player := ctx.NewPlayer(otoReader{r})
	player.SetBufferSize(cfg.SampleRate * otoDeviceBufferMs / 1000 * frameBytes)

	cfg.logger().Printf("Audio output initialized: %dHz, %d channels (oto, %d byte buffer)",
		cfg.SampleRate, cfg.Channels, r.Cap())

	return &otoDriver{ring: r, player: player}, nil
}

func (d *otoDriver) Write(p []byte) (int, error) {
	if d.closed {
		return 0, ErrNotOpen
	}
	return d.ring.Write(p), nil
}

func (d *otoDriver) Start() error {
	if d.closed {
		return ErrNotOpen
	}
	d.player.Play()
	return nil
}

func (d *otoDriver) Stop() error {
	if d.closed {
		return ErrNotOpen
	}
	d.player.Pause()
	return nil
}

func (d *otoDriver) SetNonblocking(nonblock bool) {
	d.ring.SetNonblocking(nonblock)
}

func (d *otoDriver) UseFloat() bool {
	return true
}

func (d *otoDriver) WriteAvailable() int {
	return d.ring.Free()
}

func (d *otoDriver) BufferSize() int {
	return d.ring.Cap()
}

func (d *otoDriver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.ring.Close()
	return d.player.Close()
}
