// ABOUTME: MP3 file source
// ABOUTME: Decodes with go-mp3, which always yields stereo int16
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3 reads from an MP3 file
type MP3 struct {
	file    *os.File
	decoder *mp3.Decoder
	buf     []byte
	loop    bool
	title   string
}

func NewMP3(path string, loop bool) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	s := &MP3{file: f, decoder: decoder, loop: loop, title: titleOf(path)}
	log.Printf("Loaded MP3: %s (sample rate: %d Hz)", s.title, decoder.SampleRate())
	return s, nil
}

func (s *MP3) Read(samples []int16) (int, error) {
	// 4 bytes per stereo frame
	want := len(samples) / 2 * 4
	if cap(s.buf) < want {
		s.buf = make([]byte, want)
	}
	buf := s.buf[:want]

	n, err := io.ReadFull(s.decoder, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}

	n -= n % 4
	for i := 0; i < n/2; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}

	if err != nil {
		if !s.loop {
			if n == 0 {
				return 0, io.EOF
			}
			return n / 2, nil
		}
		if rerr := s.rewind(); rerr != nil {
			return n / 2, rerr
		}
	}
	return n / 2, nil
}

func (s *MP3) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	s.decoder = decoder
	return nil
}

func (s *MP3) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3) Channels() int   { return 2 }
func (s *MP3) Name() string    { return s.title }
func (s *MP3) Close() error    { return s.file.Close() }
