// ABOUTME: Audio output package for the pipeline's driver boundary
// ABOUTME: Provides the Driver interface, a name registry and the built-in backends
// Package output defines the driver capability set the pipeline writes to.
//
// A Driver takes interleaved PCM bytes in its own sample format (UseFloat
// reports float32 vs int16). Drivers that can report free buffer space
// implement WriteAvailabler and BufferSizer; only those get rate control.
//
// Built-in drivers: oto, portaudio (build with -tags portaudio), net, wav, null.
//
// Example:
//
//	drv, err := output.Open("oto", output.Config{SampleRate: 48000, Channels: 2})
//	err = drv.Start()
//	n, err := drv.Write(pcm)
package output
