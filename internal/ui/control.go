// ABOUTME: Control requests raised by the monitor's key bindings
// ABOUTME: Applied to the pipeline by the goroutine that owns it
package ui

import "fmt"

// ControlKind identifies what a ControlMsg changes
type ControlKind int

const (
	ControlVolume ControlKind = iota
	ControlMute
	ControlSlowMotion
	ControlFastForward
)

func (k ControlKind) String() string {
	switch k {
	case ControlVolume:
		return "volume"
	case ControlMute:
		return "mute"
	case ControlSlowMotion:
		return "slow motion"
	case ControlFastForward:
		return "fast forward"
	default:
		return fmt.Sprintf("ControlKind(%d)", int(k))
	}
}

// ControlMsg is a request from the monitor
type ControlMsg struct {
	Kind   ControlKind
	Volume int // 0-100, for ControlVolume
	On     bool
}

// Target is what control requests act on; *pipeline.Pipeline satisfies it
type Target interface {
	SetVolume(gain float32)
	SetMute(mute bool) error
	SetSlowMotion(on bool)
	SetNonblocking(nonblock bool) error
}

// Control holds channels for monitor to application communication
type Control struct {
	Changes chan ControlMsg
	Quit    chan struct{}
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Changes: make(chan ControlMsg, 10),
		Quit:    make(chan struct{}, 1),
	}
}

// Apply performs msg on t
func Apply(t Target, msg ControlMsg) error {
	switch msg.Kind {
	case ControlVolume:
		t.SetVolume(float32(msg.Volume) / 100)
		return nil
	case ControlMute:
		return t.SetMute(msg.On)
	case ControlSlowMotion:
		t.SetSlowMotion(msg.On)
		return nil
	case ControlFastForward:
		return t.SetNonblocking(msg.On)
	default:
		return fmt.Errorf("unknown control: %v", msg.Kind)
	}
}
