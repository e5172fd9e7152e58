// ABOUTME: Simulated output device running on a virtual clock
// ABOUTME: Consumes frames at a drifted rate so rate control can be observed headless
package main

import (
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/output"
)

// simDevice is an output.Driver whose buffer drains at rate frames per
// virtual second. Blocking writes advance the clock until they fit.
type simDevice struct {
	frameBytes int
	size       int // bytes
	fill       int // bytes
	rate       float64

	clock    float64 // seconds
	frac     float64 // fractional frames not yet consumed
	nonblock bool
	running  bool

	underruns int
	consumed  int64 // frames
}

var (
	_ output.WriteAvailabler = (*simDevice)(nil)
	_ output.BufferSizer     = (*simDevice)(nil)
)

func newSimDevice(cfg output.Config, driftPPM float64) *simDevice {
	frameBytes := cfg.Channels * 2
	frames := cfg.SampleRate * cfg.LatencyMs / 1000
	return &simDevice{
		frameBytes: frameBytes,
		size:       frames * frameBytes,
		rate:       float64(cfg.SampleRate) * (1 + driftPPM/1e6),
	}
}

// advanceTo plays audio up to virtual time t
func (d *simDevice) advanceTo(t float64) {
	if t <= d.clock {
		return
	}
	if d.running {
		frames := (t-d.clock)*d.rate + d.frac
		whole := int(frames)
		d.frac = frames - float64(whole)

		bytes := whole * d.frameBytes
		if bytes > d.fill {
			d.underruns++
			d.consumed += int64(d.fill / d.frameBytes)
			d.fill = 0
		} else {
			d.fill -= bytes
			d.consumed += int64(whole)
		}
	}
	d.clock = t
}

func (d *simDevice) Write(p []byte) (int, error) {
	want := len(p) - len(p)%d.frameBytes
	if !d.nonblock && d.running {
		for d.size-d.fill < min(want, d.size) {
			short := min(want, d.size) - (d.size - d.fill)
			d.advanceTo(d.clock + float64(short/d.frameBytes+1)/d.rate)
		}
	}

	n := min(want, d.size-d.fill)
	n -= n % d.frameBytes
	d.fill += n
	return n, nil
}

func (d *simDevice) Start() error {
	d.running = true
	return nil
}

func (d *simDevice) Stop() error {
	d.running = false
	return nil
}

func (d *simDevice) SetNonblocking(nonblock bool) { d.nonblock = nonblock }
func (d *simDevice) UseFloat() bool               { return false }
func (d *simDevice) WriteAvailable() int          { return d.size - d.fill }
func (d *simDevice) BufferSize() int              { return d.size }
func (d *simDevice) Close() error                 { return nil }
