// ABOUTME: Tests for audio sources
// ABOUTME: Covers the test tone, file type detection, WAV looping and FLAC scaling
package source

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio/wavfile"
)

func TestOpenEmptyPathGivesTone(t *testing.T) {
	s, err := Open("", false)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, DefaultToneRate, s.SampleRate())
	assert.Equal(t, 2, s.Channels())
	assert.Equal(t, "440 Hz tone", s.Name())
}

func TestToneIsStereoSine(t *testing.T) {
	s := NewTone(1000, 8000)
	buf := make([]int16, 16)

	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	// 8 samples per period: 0, peak at 2, 0 at 4, trough at 6
	assert.Equal(t, int16(0), buf[0])
	assert.Equal(t, buf[0], buf[1])
	assert.InDelta(t, 16383, buf[4], 1)
	assert.InDelta(t, -16383, buf[12], 1)

	// continues where it left off
	_, err = s.Read(buf)
	require.NoError(t, err)
	assert.InDelta(t, 0, buf[0], 1)
}

func TestOpenRejectsUnknownFiles(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp3"), false)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "track.ogg")
	require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o644))
	_, err = Open(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported audio format")
}

func TestOpenRejectsInvalidMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not an mp3"), 0o644))

	_, err := Open(path, false)
	assert.Error(t, err)
}

func TestOpenRejectsInvalidFLAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.flac")
	require.NoError(t, os.WriteFile(path, []byte("fLaC but not really"), 0o644))

	_, err := Open(path, false)
	assert.Error(t, err)
}

func TestFLACBitDepthScaling(t *testing.T) {
	tests := []struct {
		sample   int32
		bitDepth int
		want     int16
	}{
		{1000, 16, 1000},
		{-32768, 16, -32768},
		{0x7fffff, 24, 32767},
		{-0x800000, 24, -32768},
		{127, 8, 127 << 8},
		{-128, 8, -32768},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, to16(tt.sample, tt.bitDepth), "%d at %d bits", tt.sample, tt.bitDepth)
	}
}

func writeWAV(t *testing.T, samples []int16) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	w, err := wavfile.Create(path, 22050, 2)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples(samples))
	require.NoError(t, w.Close())
	return path
}

func TestWAVSourceReadsToEOF(t *testing.T) {
	path := writeWAV(t, []int16{1, -1, 2, -2, 3, -3})

	s, err := Open(path, false)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 22050, s.SampleRate())
	assert.Equal(t, "clip", s.Name())

	buf := make([]int16, 16)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, 2, -2, 3, -3}, buf[:n])

	_, err = s.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWAVSourceLoops(t *testing.T) {
	path := writeWAV(t, []int16{7, 8})

	s, err := Open(path, true)
	require.NoError(t, err)
	defer s.Close()

	buf := make([]int16, 2)
	for i := 0; i < 5; i++ {
		n, err := s.Read(buf)
		require.NoError(t, err)
		if n > 0 {
			assert.Equal(t, []int16{7, 8}, buf[:n])
		}
	}
}
