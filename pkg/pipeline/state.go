// ABOUTME: Pipeline lifecycle states and sync modes
// ABOUTME: Text forms are used in logs, the monitor and config files
package pipeline

import (
	"fmt"
	"strings"
)

// State is the pipeline lifecycle state
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateMuted
	StateStopped
	// StateDisabled means audio failed; every call is accepted and ignored
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateMuted:
		return "muted"
	case StateStopped:
		return "stopped"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SyncMode selects how writes wait for the device
type SyncMode int

const (
	// SyncBlocking paces the producer by the device clock
	SyncBlocking SyncMode = iota
	// SyncNonblocking never waits; audio that does not fit is dropped
	SyncNonblocking
)

func (m SyncMode) String() string {
	if m == SyncNonblocking {
		return "nonblocking"
	}
	return "blocking"
}

// MarshalText implements encoding.TextMarshaler
func (m SyncMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *SyncMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "blocking", "sync", "":
		*m = SyncBlocking
	case "nonblocking", "non-blocking", "async":
		*m = SyncNonblocking
	default:
		return fmt.Errorf("unknown sync mode %q", string(text))
	}
	return nil
}
