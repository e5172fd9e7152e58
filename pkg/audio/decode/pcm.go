// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit little endian PCM to int16 samples
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	channels int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}
	return &PCMDecoder{channels: format.Channels}, nil
}

// Decode converts PCM bytes to int16 samples
func (d *PCMDecoder) Decode(data []byte) ([]int16, error) {
	frameBytes := 2 * d.channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not whole %d-byte frames", len(data), frameBytes)
	}
	return audio.Int16FromBytes(make([]int16, len(data)/2), data), nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
