// ABOUTME: FLAC file source
// ABOUTME: Decodes frame by frame with mewkiz/flac and scales any bit depth to int16
package source

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mewkiz/flac"
)

// FLAC reads from a FLAC file
type FLAC struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	loop       bool
	title      string

	// decoded samples of the current frame not yet returned
	pending []int16
}

func NewFLAC(path string, loop bool) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	s := &FLAC{
		file:       f,
		stream:     stream,
		sampleRate: int(stream.Info.SampleRate),
		channels:   int(stream.Info.NChannels),
		bitDepth:   int(stream.Info.BitsPerSample),
		loop:       loop,
		title:      titleOf(path),
	}
	log.Printf("Loaded FLAC: %s (sample rate: %d Hz, channels: %d, bit depth: %d)",
		s.title, s.sampleRate, s.channels, s.bitDepth)
	return s, nil
}

func (s *FLAC) Read(samples []int16) (int, error) {
	samples = samples[:len(samples)-len(samples)%s.channels]
	read := 0

	for read < len(samples) {
		if len(s.pending) == 0 {
			if err := s.decodeFrame(); err != nil {
				if read > 0 && errors.Is(err, io.EOF) {
					return read, nil
				}
				return read, err
			}
			continue
		}
		n := copy(samples[read:], s.pending)
		s.pending = s.pending[n:]
		read += n
	}
	return read, nil
}

// decodeFrame fills pending with the next frame, rewinding at the end when looping
func (s *FLAC) decodeFrame() error {
	frame, err := s.stream.ParseNext()
	if errors.Is(err, io.EOF) && s.loop {
		if err := s.rewind(); err != nil {
			return err
		}
		frame, err = s.stream.ParseNext()
	}
	if err != nil {
		return err
	}

	n := int(frame.BlockSize)
	buf := s.pending[:0]
	if cap(buf) < n*s.channels {
		buf = make([]int16, 0, n*s.channels)
	}
	for i := 0; i < n; i++ {
		for ch := 0; ch < s.channels; ch++ {
			buf = append(buf, to16(frame.Subframes[ch].Samples[i], s.bitDepth))
		}
	}
	s.pending = buf
	return nil
}

func to16(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth > 16:
		return int16(sample >> (bitDepth - 16))
	case bitDepth < 16:
		return int16(sample << (16 - bitDepth))
	default:
		return int16(sample)
	}
}

func (s *FLAC) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLAC) SampleRate() int { return s.sampleRate }
func (s *FLAC) Channels() int   { return s.channels }
func (s *FLAC) Name() string    { return s.title }
func (s *FLAC) Close() error    { return s.file.Close() }
