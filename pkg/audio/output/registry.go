// ABOUTME: Name to factory registry for audio drivers
// ABOUTME: Keeps registration order so the first driver is the default
package output

import (
	"fmt"
	"sync"
)

// Factory opens a driver
type Factory func(cfg Config) (Driver, error)

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{}
	order      []string
)

// Register makes a driver available by name. It panics on duplicates.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f == nil {
		panic("output: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("output: Register called twice for driver " + name)
	}
	factories[name] = f
	order = append(order, name)
}

// Names lists registered drivers in registration order
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Resolve maps name to a registered driver. Unknown or empty names resolve
// to the first registered driver and report ok=false.
func Resolve(name string) (resolved string, ok bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if _, found := factories[name]; found {
		return name, true
	}
	if len(order) == 0 {
		return "", false
	}
	return order[0], false
}

// Open creates the named driver
func Open(name string, cfg Config) (Driver, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid driver format: %dHz %dch", cfg.SampleRate, cfg.Channels)
	}
	return f(cfg)
}

func init() {
	// Order matters: the first entry is the fallback for unknown names.
	Register("oto", newOto)
	Register("portaudio", newPortAudio)
	Register("net", newNet)
	Register("wav", newWAV)
	Register("null", newNull)
}
