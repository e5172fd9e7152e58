// ABOUTME: Resampler capability set and name-based registry
// ABOUTME: Allocates, reallocates and looks up interpolating resamplers
package resample

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownResampler is returned for names with no registered factory
	ErrUnknownResampler = errors.New("unknown resampler")

	// ErrInvalidRatio is returned when a resampler is allocated with a non-positive ratio
	ErrInvalidRatio = errors.New("invalid resample ratio")
)

// Resampler converts interleaved float32 audio from the input rate to the output rate.
// Ratio is output rate / input rate and may differ on every call.
type Resampler interface {
	// Process resamples src into dst and returns the number of samples written.
	// Output stops early if dst is full.
	Process(dst, src []float32, ratio float64) int

	// Reset drops interpolation history
	Reset()

	// Close releases resampler resources
	Close()
}

// Factory allocates a resampler for the given channel count and initial ratio
type Factory func(channels int, ratio float64, quality Quality) (Resampler, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a resampler available by name.
// Registering the same name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f == nil {
		panic("resample: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("resample: Register called twice for " + name)
	}
	registry[name] = f
}

// Names returns the registered resampler names in sorted order
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New allocates a resampler. An empty name picks one from the quality level.
func New(name string, channels int, ratio float64, quality Quality) (Resampler, error) {
	if name == "" {
		name = quality.DefaultResampler()
	}
	if ratio <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRatio, ratio)
	}
	if channels < 1 {
		return nil, fmt.Errorf("resample: channels must be at least 1, got %d", channels)
	}

	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResampler, name)
	}

	return f(channels, ratio, quality)
}

// Realloc frees old (if any) and allocates a fresh resampler with no history
func Realloc(old Resampler, name string, channels int, ratio float64, quality Quality) (Resampler, error) {
	if old != nil {
		old.Close()
	}
	return New(name, channels, ratio, quality)
}

// OutputCapacity returns the number of output samples needed to resample
// inputSamples at ratio, including interpolation slack.
func OutputCapacity(inputSamples, channels int, ratio float64) int {
	frames := inputSamples / channels
	return (int(float64(frames)*ratio) + 2) * channels
}

func init() {
	Register("nearest", newNearest)
	Register("linear", newLinear)
	Register("cubic", newCubic)
}
