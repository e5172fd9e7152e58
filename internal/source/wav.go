// ABOUTME: WAV file source
// ABOUTME: Reads PCM WAV through the wavfile package
package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio/wavfile"
)

// WAV reads from a PCM WAV file
type WAV struct {
	path   string
	reader *wavfile.Reader
	loop   bool
	title  string
}

func NewWAV(path string, loop bool) (*WAV, error) {
	r, err := wavfile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	return &WAV{path: path, reader: r, loop: loop, title: titleOf(path)}, nil
}

func (s *WAV) Read(samples []int16) (int, error) {
	whole := len(samples) - len(samples)%s.reader.Channels
	n, err := s.reader.ReadSamples(samples[:whole])
	if !errors.Is(err, io.EOF) {
		return n, err
	}
	if !s.loop {
		return n, err
	}

	// reopen to loop
	r, oerr := wavfile.Open(s.path)
	if oerr != nil {
		return n, oerr
	}
	s.reader.Close()
	s.reader = r
	return n, nil
}

func (s *WAV) SampleRate() int { return s.reader.SampleRate }
func (s *WAV) Channels() int   { return s.reader.Channels }
func (s *WAV) Name() string    { return s.title }
func (s *WAV) Close() error    { return s.reader.Close() }
