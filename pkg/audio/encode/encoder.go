// ABOUTME: Encoder interface definition
// ABOUTME: Common interface and codec lookup for all audio encoders
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
)

const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// Encoder encodes interleaved int16 samples
type Encoder interface {
	// Encode converts PCM samples to encoded audio data
	Encode(samples []int16) ([]byte, error)

	// FrameSamples is the exact number of samples Encode expects, or 0 for any
	FrameSamples() int

	// Close releases encoder resources
	Close() error
}

// New creates an encoder for codec
func New(codec string, format audio.Format) (Encoder, error) {
	switch codec {
	case CodecPCM, "":
		return NewPCM(format)
	case CodecOpus:
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}
}
