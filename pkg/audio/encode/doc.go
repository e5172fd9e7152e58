// ABOUTME: Audio encoder package for the network output driver
// ABOUTME: Provides Encoder interface and implementations for PCM, Opus
// Package encode turns interleaved int16 samples into wire payloads.
//
// Supports: PCM (16-bit little endian), Opus.
//
// Opus only accepts whole 20ms frames; FrameSamples reports how many
// interleaved samples each Encode call must receive. PCM accepts any length.
//
// Example:
//
//	enc, err := encode.New(encode.CodecOpus, audio.Format{SampleRate: 48000, Channels: 2})
//	data, err := enc.Encode(samples[:enc.FrameSamples()])
package encode
