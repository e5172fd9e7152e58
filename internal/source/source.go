// ABOUTME: Audio sources standing in for an emulation core
// ABOUTME: Test tone, MP3, WAV and FLAC files producing interleaved int16 frames
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source produces interleaved int16 PCM
type Source interface {
	// Read fills samples with whole frames and returns the number of samples written
	Read(samples []int16) (int, error)
	SampleRate() int
	Channels() int
	Name() string
	Close() error
}

// Open returns a source for path. An empty path yields a 440Hz test tone.
// File sources loop forever when loop is set and return io.EOF otherwise.
func Open(path string, loop bool) (Source, error) {
	if path == "" {
		return NewTone(DefaultToneFrequency, DefaultToneRate), nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		return NewMP3(path, loop)
	case ".wav":
		return NewWAV(path, loop)
	case ".flac":
		return NewFLAC(path, loop)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .wav, .flac)", ext)
	}
}

func titleOf(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
