// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and the sample conversions used by the pipeline
// Package audio provides the PCM types shared by drivers, resamplers and the pipeline.
//
// Emulation cores hand the pipeline interleaved int16 frames. Everything between
// conversion and the driver works on float32 in [-1, 1); drivers receive bytes in
// whichever SampleFormat they declare.
//
// Example:
//
//	buf := make([]float32, len(in))
//	audio.Int16ToFloat(buf, in)
//	audio.Gain(buf, 0.5)
//	out := audio.PutInt16LE(make([]byte, len(buf)*2), buf)
package audio
