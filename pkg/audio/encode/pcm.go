// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int16 samples to 16-bit little endian bytes
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	channels int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}
	return &PCMEncoder{channels: format.Channels}, nil
}

// Encode converts int16 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int16) ([]byte, error) {
	if len(samples)%e.channels != 0 {
		return nil, fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), e.channels)
	}
	return audio.AppendInt16LE(make([]byte, 0, len(samples)*2), samples), nil
}

// FrameSamples returns 0; PCM takes any whole number of frames
func (e *PCMEncoder) FrameSamples() int {
	return 0
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
