// ABOUTME: Audiopipe protocol message type definitions
// ABOUTME: Defines structs for every control message exchanged with a sink
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version both ends must agree on
const Version = 1

// Path is the HTTP path a sink serves the WebSocket endpoint on
const Path = "/audiopipe"

// Message types
const (
	TypeSourceHello   = "source/hello"
	TypeSourceState   = "source/state"
	TypeSourceGoodbye = "source/goodbye"
	TypeSinkHello     = "sink/hello"
	TypeSinkState     = "sink/state"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received message whose payload has not been decoded yet
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEnvelope decodes the outer message wrapper
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("malformed message: missing type")
	}
	return env, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", e.Type, err)
	}
	return nil
}

// StreamFormat describes the PCM stream a source produces
type StreamFormat struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bit_depth"`
}

// SourceHello is sent by the net driver to open a stream
type SourceHello struct {
	SourceID        string       `json:"source_id"`
	Name            string       `json:"name"`
	Version         int          `json:"version"`
	Format          StreamFormat `json:"format"`
	SupportedCodecs []string     `json:"supported_codecs"`
}

// SinkHello is the sink's response to source/hello
type SinkHello struct {
	SinkID   string `json:"sink_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Codec    string `json:"codec"`
	Capacity int    `json:"capacity"` // buffer size in PCM bytes of the source format
}

// SourceState tells the sink whether the source is playing
type SourceState struct {
	Playing bool `json:"playing"`
}

// SinkState reports how much buffer space the sink has left
type SinkState struct {
	Free      int    `json:"free"`     // PCM bytes
	Capacity  int    `json:"capacity"` // PCM bytes
	Underruns int64  `json:"underruns"`
	Sequence  uint64 `json:"sequence"` // last audio chunk counted in Free
}

// Goodbye is sent before a graceful disconnect
type Goodbye struct {
	Reason string `json:"reason"` // "shutdown", "error", "user_request"
}
