// ABOUTME: Entry point for the audiopipe network sink
// ABOUTME: Accepts streams from net output drivers and plays them through a local pipeline
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/audiopipe/internal/config"
	"github.com/Resonate-Protocol/audiopipe/internal/version"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
	"github.com/Resonate-Protocol/audiopipe/pkg/pipeline"
	"github.com/Resonate-Protocol/audiopipe/pkg/sink"
)

var (
	port       = flag.Int("port", sink.DefaultPort, "WebSocket server port")
	name       = flag.String("name", "", "Sink friendly name (default: hostname-audiopipe-sink)")
	configPath = flag.String("config", "audiopipe.toml", "Settings file for the local pipeline (TOML)")
	envFile    = flag.String("env", ".env", "Environment override file")
	bufferMs   = flag.Int("buffer-ms", sink.DefaultBufferMs, "Jitter buffer size in milliseconds")
	pcmOnly    = flag.Bool("pcm-only", false, "Refuse opus and accept raw PCM only")
	logFile    = flag.String("log-file", "audiopipe-sink.log", "Log file path")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	log.SetOutput(io.MultiWriter(os.Stdout, f))

	sinkName := *name
	if sinkName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		sinkName = fmt.Sprintf("%s-audiopipe-sink", hostname)
	}

	settings, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Settings error: %v", err)
	}
	if err := config.LoadEnv(&settings, *envFile); err != nil {
		log.Fatalf("Settings error: %v", err)
	}

	log.Printf("Starting %s %s sink: %s on port %d", version.Product, version.Version, sinkName, *port)
	log.Printf("Local output: %s at %d Hz", settings.Output.Driver, settings.Output.Rate)
	log.Printf("Press Ctrl-C to stop")

	cfg := sink.Config{
		Port:       *port,
		Name:       sinkName,
		BufferMs:   *bufferMs,
		EnableMDNS: !*noMDNS,
		NewPlayer:  playerFactory(settings),
	}
	if *pcmOnly {
		cfg.Codecs = []string{"pcm"}
	}

	srv, err := sink.NewServer(cfg)
	if err != nil {
		log.Fatalf("Sink error: %v", err)
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	go reportSessions(srv)

	if err := srv.Start(); err != nil {
		log.Fatalf("Sink error: %v", err)
	}

	log.Printf("Sink stopped")
}

// playerFactory opens one local pipeline per connected source. The sink's
// jitter buffer absorbs the network, so the local pipeline only has to bridge
// the source rate to the local device rate.
func playerFactory(settings config.Config) sink.PlayerFactory {
	return func(format audio.Format) (sink.Player, error) {
		pcfg := settings.Pipeline(float64(format.SampleRate))
		pcfg.Channels = format.Channels
		pcfg.Sync = pipeline.SyncBlocking
		p, err := pipeline.New(pcfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func reportSessions(srv *sink.Server) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		for _, s := range srv.Sessions() {
			log.Printf("Session %s (%s): %s %d Hz %d ch, buffered %d/%d bytes, underruns %d, overruns %d, playing %v",
				s.Name, s.ID, s.Codec, s.SampleRate, s.Channels, s.Buffered, s.Capacity, s.Underruns, s.Overruns, s.Playing)
		}
	}
}
