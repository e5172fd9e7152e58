// ABOUTME: Audio resampling package with pluggable interpolators
// ABOUTME: Converts interleaved float audio between sample rates at a variable ratio
// Package resample provides sample rate conversion for the output pipeline.
//
// Resamplers are selected by name through a small registry. The ratio is passed on
// every call so the rate controller can retarget it continuously without
// reallocating; Realloc is only needed when switching implementations or after a
// coarse reset.
//
// Example:
//
//	r, err := resample.New("linear", 2, 48000.0/44100.0, resample.QualityMedium)
//	n := r.Process(out, in, ratio)
package resample
