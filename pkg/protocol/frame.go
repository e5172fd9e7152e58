// ABOUTME: Binary audio chunk framing
// ABOUTME: Encodes and parses the type byte, sequence number and payload
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// BinaryMessageHeaderSize is the size of binary message header (type byte + sequence)
	BinaryMessageHeaderSize = 1 + 8

	// AudioChunkMessageType is the binary message type ID for audio chunks
	AudioChunkMessageType = 4
)

// ErrShortChunk is returned for binary messages smaller than the header
var ErrShortChunk = errors.New("binary message too short")

// AudioChunk is one encoded packet of audio
type AudioChunk struct {
	Sequence uint64
	Data     []byte
}

// AppendAudioChunk appends the binary framing of an audio chunk to dst
func AppendAudioChunk(dst []byte, seq uint64, payload []byte) []byte {
	dst = append(dst, AudioChunkMessageType)
	dst = binary.BigEndian.AppendUint64(dst, seq)
	return append(dst, payload...)
}

// ParseAudioChunk parses a binary message. The payload aliases data.
func ParseAudioChunk(data []byte) (AudioChunk, error) {
	if len(data) < BinaryMessageHeaderSize {
		return AudioChunk{}, ErrShortChunk
	}
	if data[0] != AudioChunkMessageType {
		return AudioChunk{}, fmt.Errorf("unknown binary message type: %d", data[0])
	}
	return AudioChunk{
		Sequence: binary.BigEndian.Uint64(data[1:BinaryMessageHeaderSize]),
		Data:     data[BinaryMessageHeaderSize:],
	}, nil
}
