// ABOUTME: Entry point for the audiopipe player
// ABOUTME: Plays a tone or audio file through the pipeline at an emulated core speed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/audiopipe/internal/config"
	"github.com/Resonate-Protocol/audiopipe/internal/source"
	"github.com/Resonate-Protocol/audiopipe/internal/ui"
	"github.com/Resonate-Protocol/audiopipe/internal/version"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/output"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/resample"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/wavfile"
	"github.com/Resonate-Protocol/audiopipe/pkg/pipeline"
)

// Video frames per second of the emulated core; audio is produced once per frame
const coreFPS = 60

var (
	configPath  = flag.String("config", "audiopipe.toml", "Settings file (TOML)")
	envFile     = flag.String("env", ".env", "Environment override file")
	audioFile   = flag.String("audio", "", "MP3 or WAV file to play (default: 440Hz tone)")
	loop        = flag.Bool("loop", true, "Loop the audio file")
	speed       = flag.Float64("speed", 1.0, "Emulated core speed relative to real time")
	driver      = flag.String("driver", "", "Audio driver (overrides settings)")
	device      = flag.String("device", "", "Audio device (overrides settings)")
	resampler   = flag.String("resampler", "", "Resampler (overrides settings)")
	threaded    = flag.Bool("threaded", false, "Run the driver on its own goroutine")
	record      = flag.String("record", "", "Record the input to a WAV file")
	duration    = flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	listDrivers = flag.Bool("list-drivers", false, "List audio drivers and resamplers, then exit")
	logFile     = flag.String("log-file", "audiopipe.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}
	if *listDrivers {
		fmt.Printf("Audio drivers: %s\n", strings.Join(output.Names(), ", "))
		fmt.Printf("Resamplers:    %s\n", strings.Join(resample.Names(), ", "))
		return
	}
	if *speed <= 0 {
		log.Fatalf("-speed must be positive, got %v", *speed)
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	if err := run(useTUI); err != nil {
		log.Printf("Player failed: %v", err)
		if useTUI {
			fmt.Fprintf(os.Stderr, "audiopipe: %v\n", err)
		}
		os.Exit(1)
	}
}

func loadSettings() (config.Config, error) {
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return cfg, err
	}
	if err := config.LoadEnv(&cfg, *envFile); err != nil {
		return cfg, err
	}

	if *driver != "" {
		cfg.Output.Driver = *driver
	}
	if *device != "" {
		cfg.Output.Device = *device
	}
	if *resampler != "" {
		cfg.Resampler.Name = *resampler
	}
	if *threaded {
		cfg.Output.Threaded = true
	}
	return cfg, nil
}

func run(useTUI bool) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	src, err := source.Open(*audioFile, *loop)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	pcfg := settings.Pipeline(float64(src.SampleRate()))
	pcfg.Channels = src.Channels()

	var rec *wavfile.Writer
	if *record != "" {
		rec, err = wavfile.Create(*record, src.SampleRate(), src.Channels())
		if err != nil {
			return err
		}
		pcfg.Recorder = rec
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("Error closing recording: %v", err)
			}
			log.Printf("Recorded %d frames to %s", rec.Frames(), *record)
		}()
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Printf("Error closing pipeline: %v", err)
		}
	}()

	log.Printf("Playing %s (%d Hz, %d ch) at %.3fx", src.Name(), src.SampleRate(), src.Channels(), *speed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, *duration)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return produce(ctx, src, p, *speed)
	})

	if useTUI {
		control := ui.NewControl()
		monitor := ui.NewMonitor(src.Name(), control)

		g.Go(func() error {
			defer cancel()
			return monitor.Run()
		})
		g.Go(func() error {
			<-ctx.Done()
			monitor.Stop()
			return nil
		})
		g.Go(func() error {
			return handleControl(ctx, p, control, cancel)
		})
		g.Go(func() error {
			return statsLoop(ctx, p, 250*time.Millisecond, monitor.Update)
		})
	} else {
		g.Go(func() error {
			return statsLoop(ctx, p, 5*time.Second, logStats)
		})
	}

	return g.Wait()
}

// produce emulates a core running at speed: each emulated video frame
// yields one frame's worth of audio at the source's nominal rate
func produce(ctx context.Context, src source.Source, p *pipeline.Pipeline, speed float64) error {
	framesPerTick := src.SampleRate() / coreFPS
	buf := make([]int16, framesPerTick*src.Channels())

	interval := time.Duration(float64(time.Second) / coreFPS / speed)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := src.Read(buf)
		if n > 0 {
			if subErr := p.Submit(buf[:n]); subErr != nil {
				if errors.Is(subErr, pipeline.ErrClosed) {
					return nil
				}
				return subErr
			}
		}
		if errors.Is(err, io.EOF) {
			log.Printf("Source %s finished", src.Name())
			return nil
		}
		if err != nil {
			return fmt.Errorf("source read failed: %w", err)
		}
	}
}

// handleControl applies monitor requests to the pipeline
func handleControl(ctx context.Context, p *pipeline.Pipeline, control *ui.Control, quit context.CancelFunc) error {
	for {
		select {
		case msg := <-control.Changes:
			log.Printf("Control: %v (volume %d, on %v)", msg.Kind, msg.Volume, msg.On)
			if err := ui.Apply(p, msg); err != nil {
				log.Printf("Control %v failed: %v", msg.Kind, err)
			}
		case <-control.Quit:
			log.Printf("Received quit signal from TUI")
			quit()
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func statsLoop(ctx context.Context, p *pipeline.Pipeline, every time.Duration, report func(pipeline.Stats)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report(p.Stats())
		}
	}
}

func logStats(s pipeline.Stats) {
	log.Printf("%s: ratio %.6f (orig %.6f), fill %.2f, frames in %d out %d, dropped %d, short %d",
		s.State, s.Ratio, s.OriginalRatio, s.BufferFill, s.Submitted, s.Written, s.Dropped, s.ShortWrites)
}
