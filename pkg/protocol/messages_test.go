// ABOUTME: Tests for audiopipe protocol message types
// ABOUTME: Verifies envelopes, payload decoding and binary framing
package protocol

import (
	"encoding/json"
	"testing"
)

func TestSourceHelloRoundTrip(t *testing.T) {
	hello := SourceHello{
		SourceID:        "src-1",
		Name:            "Test Source",
		Version:         Version,
		Format:          StreamFormat{SampleRate: 48000, Channels: 2, BitDepth: 16},
		SupportedCodecs: []string{"opus", "pcm"},
	}

	data, err := json.Marshal(Message{Type: TypeSourceHello, Payload: hello})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if env.Type != TypeSourceHello {
		t.Errorf("expected type %s, got %s", TypeSourceHello, env.Type)
	}

	var decoded SourceHello
	if err := env.Decode(&decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Format.SampleRate != 48000 || decoded.SourceID != "src-1" || len(decoded.SupportedCodecs) != 2 {
		t.Errorf("decoded hello mismatch: %+v", decoded)
	}
}

func TestParseEnvelopeErrors(t *testing.T) {
	if _, err := ParseEnvelope([]byte("{not json")); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := ParseEnvelope([]byte(`{"payload":{}}`)); err == nil {
		t.Error("expected error for missing type")
	}

	env, err := ParseEnvelope([]byte(`{"type":"sink/state"}`))
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	var st SinkState
	if err := env.Decode(&st); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestAudioChunkFraming(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	data := AppendAudioChunk(nil, 42, payload)

	if len(data) != BinaryMessageHeaderSize+len(payload) {
		t.Fatalf("framed length %d, want %d", len(data), BinaryMessageHeaderSize+len(payload))
	}

	chunk, err := ParseAudioChunk(data)
	if err != nil {
		t.Fatalf("ParseAudioChunk failed: %v", err)
	}
	if chunk.Sequence != 42 {
		t.Errorf("sequence %d, want 42", chunk.Sequence)
	}
	if string(chunk.Data) != string(payload) {
		t.Errorf("payload %v, want %v", chunk.Data, payload)
	}
}

func TestParseAudioChunkErrors(t *testing.T) {
	if _, err := ParseAudioChunk([]byte{4, 0}); err != ErrShortChunk {
		t.Errorf("expected ErrShortChunk, got %v", err)
	}

	bad := AppendAudioChunk(nil, 1, nil)
	bad[0] = 9
	if _, err := ParseAudioChunk(bad); err == nil {
		t.Error("expected error for unknown type")
	}
}
