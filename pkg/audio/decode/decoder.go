// ABOUTME: Decoder interface definition
// ABOUTME: Common interface and codec lookup for all audio decoders
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
)

// Decoder decodes audio payloads to interleaved int16 samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) ([]int16, error)

	// Close releases decoder resources
	Close() error
}

// New creates a decoder for codec
func New(codec string, format audio.Format) (Decoder, error) {
	switch codec {
	case "pcm", "":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}
}
