// ABOUTME: Audio decoder package for the network sink
// ABOUTME: Provides Decoder interface and implementations for PCM, Opus
// Package decode turns wire payloads back into interleaved int16 samples.
//
// Supports: PCM (16-bit little endian), Opus.
//
// Example:
//
//	dec, err := decode.New("opus", audio.Format{SampleRate: 48000, Channels: 2})
//	samples, err := dec.Decode(packet)
package decode
