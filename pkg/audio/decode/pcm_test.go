// ABOUTME: Unit tests for PCM decoder
// ABOUTME: Tests 16-bit PCM decoding
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
)

func TestPCMDecode(t *testing.T) {
	dec, err := NewPCM(audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}
	defer dec.Close()

	data := []byte{0x01, 0x00, 0xff, 0xff, 0xff, 0x7f, 0x00, 0x80}
	got, err := dec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	want := []int16{1, -1, 32767, -32768}
	if len(got) != len(want) {
		t.Fatalf("Decode() returned %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCMDecode_PartialFrame(t *testing.T) {
	dec, err := NewPCM(audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("NewPCM() failed: %v", err)
	}
	if _, err := dec.Decode([]byte{1, 2, 3}); err == nil {
		t.Error("Decode() accepted a partial frame")
	}
}

func TestNewByCodec(t *testing.T) {
	format := audio.Format{SampleRate: 48000, Channels: 2}
	if _, err := New("pcm", format); err != nil {
		t.Errorf("New(pcm) failed: %v", err)
	}
	if _, err := New("mp3", format); err == nil {
		t.Error("New(mp3) expected error")
	}
}
