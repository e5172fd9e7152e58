// ABOUTME: Dynamic rate control package for the audio output pipeline
// ABOUTME: Proportional ratio controller plus a buffer saturation log for diagnostics
// Package ratecontrol keeps the driver's buffer centred by nudging the resample ratio.
//
// Every submission the controller reads how much space the driver has free and moves
// the ratio by at most ±delta around the nominal output/input ratio: a drained buffer
// makes the resampler produce more samples, a full one fewer. The same reading is
// logged in a SaturationRing, which can later summarize how close playback ran to
// underrun or to blocking. The summary is diagnostic only.
package ratecontrol
