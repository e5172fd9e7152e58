// ABOUTME: Headless drift simulation for the audio pipeline
// ABOUTME: Runs a producer against a simulated device with a skewed clock and prints the fill summary
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Resonate-Protocol/audiopipe/internal/source"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/output"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/ratecontrol"
	"github.com/Resonate-Protocol/audiopipe/pkg/pipeline"
)

type simParams struct {
	InRate      int
	OutRate     int
	DriftPPM    float64 // device clock error
	Speed       float64 // core speed relative to real time
	Seconds     float64
	LatencyMs   int
	Delta       float64
	RateControl bool
	Sync        pipeline.SyncMode
	Resampler   string
	Logger      *log.Logger
}

type simResult struct {
	Stats     pipeline.Stats
	Underruns int
	Consumed  int64 // frames played by the device
	Elapsed   float64
}

// simulate runs the core for Seconds of core time, one audio chunk per
// 60Hz video frame, against a device that drifts by DriftPPM
func simulate(p simParams) (simResult, error) {
	var dev *simDevice
	cfg := pipeline.Config{
		OutputRate:       p.OutRate,
		InputRate:        float64(p.InRate),
		Channels:         2,
		Driver:           "sim",
		LatencyMs:        p.LatencyMs,
		Resampler:        p.Resampler,
		RateControl:      p.RateControl,
		RateControlDelta: p.Delta,
		Sync:             p.Sync,
		Logger:           p.Logger,
		DriverFactory: func(c output.Config) (output.Driver, error) {
			dev = newSimDevice(c, p.DriftPPM)
			return dev, nil
		},
	}

	pl, err := pipeline.New(cfg)
	if err != nil {
		return simResult{}, err
	}
	if dev == nil || pl.State() != pipeline.StateActive {
		_ = pl.Close()
		return simResult{}, fmt.Errorf("pipeline did not start (state %s)", pl.State())
	}

	tone := source.NewTone(source.DefaultToneFrequency, p.InRate)
	chunk := make([]int16, p.InRate/60*2)

	tick := 1 / 60.0 / p.Speed
	ticks := int(p.Seconds * 60)
	core := 0.0

	for i := 0; i < ticks; i++ {
		dev.advanceTo(core)

		n, _ := tone.Read(chunk)
		if err := pl.Submit(chunk[:n]); err != nil {
			_ = pl.Close()
			return simResult{}, err
		}

		// A blocking write holds the core back until the device caught up
		core = max(core+tick, dev.clock)
	}

	if err := pl.Close(); err != nil {
		return simResult{}, err
	}
	return simResult{
		Stats:     pl.Stats(),
		Underruns: dev.underruns,
		Consumed:  dev.consumed,
		Elapsed:   dev.clock,
	}, nil
}

func main() {
	var (
		p     simParams
		sync  string
		quiet bool
	)
	flag.IntVar(&p.InRate, "in-rate", 48000, "Core audio rate in Hz")
	flag.IntVar(&p.OutRate, "out-rate", 48000, "Device rate in Hz")
	flag.Float64Var(&p.DriftPPM, "drift-ppm", 2000, "Device clock error in parts per million")
	flag.Float64Var(&p.Speed, "speed", 1.0, "Core speed relative to real time")
	flag.Float64Var(&p.Seconds, "seconds", 60, "Core time to simulate")
	flag.IntVar(&p.LatencyMs, "latency", 64, "Device buffer in milliseconds")
	flag.Float64Var(&p.Delta, "delta", ratecontrol.DefaultDelta, "Rate control delta")
	flag.BoolVar(&p.RateControl, "rate-control", true, "Enable dynamic rate control")
	flag.StringVar(&p.Resampler, "resampler", "", "Resampler name")
	flag.StringVar(&sync, "sync", "nonblocking", "Audio sync mode: blocking or nonblocking")
	flag.BoolVar(&quiet, "quiet", false, "Suppress pipeline log lines")
	flag.Parse()

	if err := p.Sync.UnmarshalText([]byte(sync)); err != nil {
		log.Fatalf("Invalid -sync: %v", err)
	}
	if p.Speed <= 0 || p.Seconds <= 0 {
		log.Fatalf("-speed and -seconds must be positive")
	}
	p.Logger = log.New(os.Stderr, "", log.LstdFlags)
	if quiet {
		p.Logger = log.New(io.Discard, "", 0)
	}

	res, err := simulate(p)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	s := res.Stats
	fmt.Printf("Simulated %.1fs of device time (%d frames played)\n", res.Elapsed, res.Consumed)
	fmt.Printf("Ratio:        %.6f (nominal %.6f, %+.3f%%)\n", s.Ratio, s.OriginalRatio, (s.Ratio/s.OriginalRatio-1)*100)
	fmt.Printf("Frames:       in %d, out %d\n", s.Submitted, s.Written)
	fmt.Printf("Losses:       %d short-write frames, %d underruns\n", s.ShortWrites, res.Underruns)
	if s.Summary != nil {
		fmt.Printf("Saturation:   %s\n", s.Summary)
	} else {
		fmt.Printf("Saturation:   not measured\n")
	}
}
