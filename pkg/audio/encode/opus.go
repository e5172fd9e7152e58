// ABOUTME: Opus audio encoder
// ABOUTME: Encodes 20ms frames of int16 samples to Opus packets
package encode

import (
	"fmt"
	"log"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the largest packet libopus will produce
const maxOpusPacket = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int // samples per channel per frame
	out       []byte
}

// SupportsOpus reports whether libopus accepts sampleRate
func SupportsOpus(sampleRate int) bool {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

// NewOpus creates a new Opus encoder
func NewOpus(format audio.Format) (Encoder, error) {
	if !SupportsOpus(format.SampleRate) {
		return nil, fmt.Errorf("unsupported sample rate for opus: %d", format.SampleRate)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("unsupported channel count for opus: %d", format.Channels)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	// 64 kbps per channel
	if err := encoder.SetBitrate(64000 * format.Channels); err != nil {
		log.Printf("Warning: Failed to set Opus bitrate: %v", err)
	}

	return &OpusEncoder{
		encoder:   encoder,
		channels:  format.Channels,
		frameSize: format.SampleRate / 50, // 20ms frame
		out:       make([]byte, maxOpusPacket),
	}, nil
}

// Encode converts one frame of int16 samples to an Opus packet.
// The returned slice is only valid until the next call.
func (e *OpusEncoder) Encode(samples []int16) ([]byte, error) {
	if len(samples) != e.FrameSamples() {
		return nil, fmt.Errorf("opus needs %d samples per frame, got %d", e.FrameSamples(), len(samples))
	}

	n, err := e.encoder.Encode(samples, e.out)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}
	return e.out[:n], nil
}

// FrameSamples returns the interleaved sample count of one 20ms frame
func (e *OpusEncoder) FrameSamples() int {
	return e.frameSize * e.channels
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
