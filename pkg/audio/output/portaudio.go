//go:build portaudio

// ABOUTME: PortAudio output driver
// ABOUTME: Blocking-I/O PortAudio stream with write availability for rate control
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioFramesPerBuffer = 256

var errWouldBlock = errors.New("portaudio: stream full")

type portAudioDriver struct {
	stream     *portaudio.Stream
	buf        []float32
	fill       int
	frameBytes int
	bufferSize int
	nonblock   atomic.Bool
	closed     bool
	underflows int
}

func newPortAudio(cfg Config) (Driver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	d := &portAudioDriver{
		buf:        make([]float32, portAudioFramesPerBuffer*cfg.Channels),
		frameBytes: cfg.Channels * 4,
	}
	d.bufferSize = cfg.bufferBytes(d.frameBytes)

	stream, err := openPortAudioStream(cfg, d.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	d.stream = stream

	cfg.logger().Printf("Audio output initialized: %dHz, %d channels (portaudio)", cfg.SampleRate, cfg.Channels)
	return d, nil
}

func openPortAudioStream(cfg Config, buf []float32) (*portaudio.Stream, error) {
	if cfg.Device == "" {
		return portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), portAudioFramesPerBuffer, buf)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name != cfg.Device || dev.MaxOutputChannels < cfg.Channels {
			continue
		}
		params := portaudio.HighLatencyParameters(nil, dev)
		params.Output.Channels = cfg.Channels
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = portAudioFramesPerBuffer
		return portaudio.OpenStream(params, buf)
	}
	return nil, fmt.Errorf("no output device named %q", cfg.Device)
}

func (d *portAudioDriver) Write(p []byte) (int, error) {
	if d.closed {
		return 0, ErrNotOpen
	}

	consumed := 0
	for consumed+4 <= len(p) {
		if d.fill == len(d.buf) {
			if err := d.flush(); err != nil {
				if errors.Is(err, errWouldBlock) {
					break
				}
				return consumed, err
			}
		}
		d.buf[d.fill] = math.Float32frombits(binary.LittleEndian.Uint32(p[consumed:]))
		d.fill++
		consumed += 4
	}
	return consumed, nil
}

// flush hands one full period to PortAudio
func (d *portAudioDriver) flush() error {
	if d.nonblock.Load() {
		avail, err := d.stream.AvailableToWrite()
		if err != nil {
			return err
		}
		if avail < portAudioFramesPerBuffer {
			return errWouldBlock
		}
	}

	err := d.stream.Write()
	if err == portaudio.OutputUnderflowed {
		d.underflows++
		err = nil
	}
	if err != nil {
		return fmt.Errorf("portaudio write failed: %w", err)
	}
	d.fill = 0
	return nil
}

func (d *portAudioDriver) Start() error {
	if d.closed {
		return ErrNotOpen
	}
	return d.stream.Start()
}

func (d *portAudioDriver) Stop() error {
	if d.closed {
		return ErrNotOpen
	}
	return d.stream.Stop()
}

// SetNonblocking only affects the next write; a write already inside
// PortAudio returns after at most one period.
func (d *portAudioDriver) SetNonblocking(nonblock bool) {
	d.nonblock.Store(nonblock)
}

func (d *portAudioDriver) UseFloat() bool {
	return true
}

func (d *portAudioDriver) WriteAvailable() int {
	if d.closed {
		return 0
	}
	avail, err := d.stream.AvailableToWrite()
	if err != nil {
		return 0
	}
	free := avail*d.frameBytes - d.fill*4
	return max(0, min(free, d.bufferSize))
}

func (d *portAudioDriver) BufferSize() int {
	return d.bufferSize
}

func (d *portAudioDriver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.stream.Close(); err != nil {
		portaudio.Terminate()
		return err
	}
	return portaudio.Terminate()
}
