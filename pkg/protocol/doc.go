// ABOUTME: Audiopipe network sink wire protocol package
// ABOUTME: Defines JSON control messages and binary audio chunk framing
// Package protocol implements the wire protocol between the net output
// driver (the source) and a network sink.
//
// Control messages are JSON text frames wrapped in Message. Audio travels
// as binary frames: one type byte, an 8-byte big endian sequence number and
// the encoded payload.
//
// Handshake: the source sends source/hello with its stream format and the
// codecs it can encode; the sink answers sink/hello with the chosen codec
// and its buffer capacity, then reports sink/state periodically so the
// source can run rate control against the remote buffer.
package protocol
