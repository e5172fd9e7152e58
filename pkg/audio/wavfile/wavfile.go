// ABOUTME: 16-bit PCM WAV reading and writing on top of go-audio/wav
// ABOUTME: Used by the wav output driver, the recording tap and file sources
package wavfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth      = 16
	wavFormatPCM  = 1
	readChunkSize = 4096
)

// ErrInvalidFile is returned when a file is not a readable WAV file
var ErrInvalidFile = errors.New("invalid WAV file")

// Writer streams interleaved int16 samples into a WAV file.
// It is safe for concurrent use; the recording tap may be fed from
// the producer goroutine while Close runs elsewhere.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	enc      *wav.Encoder
	buf      *goaudio.IntBuffer
	channels int
	frames   int64
	closed   bool
}

// Create opens path for writing and prepares a 16-bit PCM encoder
func Create(path string, sampleRate, channels int) (*Writer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid WAV format: %dHz %dch", sampleRate, channels)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	return &Writer{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, bitDepth, channels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		channels: channels,
	}, nil
}

// WriteSamples appends interleaved samples
func (w *Writer) WriteSamples(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}

	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = int(s)
	}

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wav encode failed: %w", err)
	}
	w.frames += int64(len(samples) / w.channels)
	return nil
}

// RecordSamples implements the pipeline recording tap
func (w *Writer) RecordSamples(samples []int16) error {
	return w.WriteSamples(samples)
}

// Frames returns the number of frames written so far
func (w *Writer) Frames() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close finalizes the header and closes the file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize wav: %w", encErr)
	}
	return fileErr
}

// Reader decodes a WAV file into interleaved int16 samples
type Reader struct {
	file       *os.File
	dec        *wav.Decoder
	buf        *goaudio.IntBuffer
	shift      int
	SampleRate int
	Channels   int
}

// Open opens a WAV file for reading
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}

	format := dec.Format()
	depth := int(dec.BitDepth)
	if depth < 8 || depth > 32 {
		f.Close()
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFile, depth)
	}

	return &Reader{
		file: f,
		dec:  dec,
		buf: &goaudio.IntBuffer{
			Data:   make([]int, readChunkSize*format.NumChannels),
			Format: format,
		},
		shift:      depth - bitDepth,
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
	}, nil
}

// ReadSamples fills dst with interleaved samples scaled to 16 bits.
// It returns io.EOF once the data chunk is exhausted.
func (r *Reader) ReadSamples(dst []int16) (int, error) {
	want := len(dst)
	if want > cap(r.buf.Data) {
		want = cap(r.buf.Data)
	}
	r.buf.Data = r.buf.Data[:want]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("wav decode failed: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		v := r.buf.Data[i]
		switch {
		case r.shift > 0:
			v >>= r.shift
		case r.shift < 0:
			// 8-bit WAV is unsigned
			v = (v - 128) << -r.shift
		}
		dst[i] = int16(v)
	}
	return n, nil
}

// Close closes the underlying file
func (r *Reader) Close() error {
	return r.file.Close()
}
