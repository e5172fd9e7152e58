// ABOUTME: Sine tone generator
// ABOUTME: Stereo test signal with no file dependency
package source

import (
	"fmt"
	"math"
)

const (
	DefaultToneFrequency = 440.0 // A4
	DefaultToneRate      = 44100
)

// Tone generates a stereo sine wave at half volume
type Tone struct {
	frequency  float64
	sampleRate int
	index      uint64
}

func NewTone(frequency float64, sampleRate int) *Tone {
	return &Tone{frequency: frequency, sampleRate: sampleRate}
}

func (s *Tone) Read(samples []int16) (int, error) {
	frames := len(samples) / 2

	for i := 0; i < frames; i++ {
		t := float64(s.index+uint64(i)) / float64(s.sampleRate)
		v := int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * 0.5)

		samples[i*2] = v
		samples[i*2+1] = v
	}
	s.index += uint64(frames)

	return frames * 2, nil
}

func (s *Tone) SampleRate() int { return s.sampleRate }
func (s *Tone) Channels() int   { return 2 }
func (s *Tone) Name() string    { return fmt.Sprintf("%.0f Hz tone", s.frequency) }
func (s *Tone) Close() error    { return nil }
