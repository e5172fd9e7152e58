// ABOUTME: Persistent audio settings loaded from TOML with .env overrides
// ABOUTME: Converts settings into a pipeline configuration
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio/resample"
	"github.com/Resonate-Protocol/audiopipe/pkg/pipeline"
)

type Output struct {
	Driver         string            `toml:"driver"`
	Device         string            `toml:"device"`
	Rate           int               `toml:"rate"`
	Channels       int               `toml:"channels"`
	LatencyMs      int               `toml:"latency_ms"`
	Sync           pipeline.SyncMode `toml:"sync"`
	Threaded       bool              `toml:"threaded"`
	QueueChunks    int               `toml:"queue_chunks"`
	QueueTimeoutMs int               `toml:"queue_timeout_ms"`
	Mute           bool              `toml:"mute"`
	Volume         float64           `toml:"volume"`
}

type Resampler struct {
	Name    string           `toml:"name"`
	Quality resample.Quality `toml:"quality"`
}

type RateControl struct {
	Enabled       bool    `toml:"enabled"`
	Delta         float64 `toml:"delta"`
	StatsCapacity int     `toml:"stats_capacity"`
}

type Playback struct {
	SlowMotionRatio float64 `toml:"slow_motion_ratio"`
	RewindSize      int     `toml:"rewind_size"`
	MaxRatio        float64 `toml:"max_ratio"`
}

type Config struct {
	Output      Output      `toml:"output"`
	Resampler   Resampler   `toml:"resampler"`
	RateControl RateControl `toml:"rate_control"`
	Playback    Playback    `toml:"playback"`
}

func Default() Config {
	return Config{
		Output: Output{
			Driver:         "oto",
			Rate:           pipeline.DefaultOutputRate,
			Channels:       pipeline.DefaultChannels,
			LatencyMs:      64,
			Sync:           pipeline.SyncBlocking,
			QueueChunks:    pipeline.DefaultQueueChunks,
			QueueTimeoutMs: int(pipeline.DefaultQueueTimeout / time.Millisecond),
			Volume:         1,
		},
		Resampler: Resampler{
			Quality: resample.QualityMedium,
		},
		RateControl: RateControl{
			Enabled:       true,
			Delta:         0.005,
			StatsCapacity: 1024,
		},
		Playback: Playback{
			SlowMotionRatio: pipeline.DefaultSlowMotionRatio,
			RewindSize:      pipeline.DefaultRewindSamples,
			MaxRatio:        pipeline.DefaultMaxRatio,
		},
	}
}

func Save(config Config, w io.Writer) error {
	return toml.NewEncoder(w).Encode(config)
}

func Load(r io.Reader) (Config, error) {
	c := Default()

	if _, err := toml.NewDecoder(r).Decode(&c); err != nil {
		return c, err
	}

	return c, nil
}

// LoadFile reads path, returning defaults if it does not exist
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), err
	}
	defer f.Close()

	return Load(f)
}

// Environment variables that override file settings
const (
	EnvDriver           = "AUDIOPIPE_DRIVER"
	EnvDevice           = "AUDIOPIPE_DEVICE"
	EnvOutRate          = "AUDIOPIPE_OUT_RATE"
	EnvResampler        = "AUDIOPIPE_RESAMPLER"
	EnvRateControlDelta = "AUDIOPIPE_RATE_CONTROL_DELTA"
	EnvLatencyMs        = "AUDIOPIPE_LATENCY_MS"
	EnvMute             = "AUDIOPIPE_MUTE"
)

// LoadEnv loads the given .env files (".env" if none) into the process
// environment and applies AUDIOPIPE_* overrides to c. Missing files are ignored.
func LoadEnv(c *Config, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return c.ApplyEnv(os.LookupEnv)
}

// ApplyEnv applies overrides found through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDriver); ok {
		c.Output.Driver = v
	}
	if v, ok := lookup(EnvDevice); ok {
		c.Output.Device = v
	}
	if v, ok := lookup(EnvResampler); ok {
		c.Resampler.Name = v
	}
	if v, ok := lookup(EnvOutRate); ok {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvOutRate, err)
		}
		c.Output.Rate = rate
	}
	if v, ok := lookup(EnvLatencyMs); ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLatencyMs, err)
		}
		c.Output.LatencyMs = ms
	}
	if v, ok := lookup(EnvRateControlDelta); ok {
		delta, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRateControlDelta, err)
		}
		c.RateControl.Delta = delta
	}
	if v, ok := lookup(EnvMute); ok {
		mute, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMute, err)
		}
		c.Output.Mute = mute
	}
	return nil
}

// Pipeline builds a pipeline configuration for a producer running at inputRate
func (c Config) Pipeline(inputRate float64) pipeline.Config {
	return pipeline.Config{
		OutputRate:       c.Output.Rate,
		InputRate:        inputRate,
		Channels:         c.Output.Channels,
		Driver:           c.Output.Driver,
		Device:           c.Output.Device,
		LatencyMs:        c.Output.LatencyMs,
		Resampler:        c.Resampler.Name,
		Quality:          c.Resampler.Quality,
		RateControl:      c.RateControl.Enabled,
		RateControlDelta: c.RateControl.Delta,
		Sync:             c.Output.Sync,
		Threaded:         c.Output.Threaded,
		QueueChunks:      c.Output.QueueChunks,
		QueueTimeout:     time.Duration(c.Output.QueueTimeoutMs) * time.Millisecond,
		Mute:             c.Output.Mute,
		RewindSize:       c.Playback.RewindSize,
		SlowMotionRatio:  c.Playback.SlowMotionRatio,
		MaxRatio:         c.Playback.MaxRatio,
		Volume:           float32(c.Output.Volume),
		StatsCapacity:    c.RateControl.StatsCapacity,
	}
}
