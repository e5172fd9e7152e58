//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Keeps the driver name registered but refuses to open
package output

import (
	"errors"
)

var errPortAudioDisabled = errors.New("PortAudio support not enabled (build with -tags portaudio)")

func newPortAudio(cfg Config) (Driver, error) {
	return nil, errPortAudioDisabled
}
