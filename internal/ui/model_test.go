// ABOUTME: Tests for the monitor model and control plumbing
// ABOUTME: Covers stats updates, key handling and applying controls
package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/audiopipe/pkg/pipeline"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, s string) Model {
	t.Helper()
	next, _ := m.Update(key(s))
	return next.(Model)
}

func TestNewModel(t *testing.T) {
	model := NewModel("tone", nil)

	if model.volume != 100 {
		t.Errorf("expected default volume 100, got %d", model.volume)
	}
	if model.muted {
		t.Error("expected muted to be false initially")
	}
	if model.seen {
		t.Error("expected no stats initially")
	}
	if !strings.Contains(model.View(), "Waiting for pipeline") {
		t.Error("expected waiting message before first stats")
	}
}

func TestStatsMsg(t *testing.T) {
	model := NewModel("tone", nil)

	next, _ := model.Update(StatsMsg(pipeline.Stats{
		State:         pipeline.StateMuted,
		Driver:        "null",
		Resampler:     "linear",
		Sync:          pipeline.SyncNonblocking,
		SlowMotion:    true,
		Volume:        0.5,
		OriginalRatio: 1,
		Ratio:         1.005,
		BufferFill:    0.25,
	}))
	model = next.(Model)

	if !model.muted {
		t.Error("expected muted from stats")
	}
	if !model.slowMotion || !model.fastFwd {
		t.Error("expected slow motion and fast forward from stats")
	}
	if model.volume != 50 {
		t.Errorf("expected volume 50, got %d", model.volume)
	}

	view := model.View()
	for _, want := range []string{"null", "linear", "1.005000", "+0.500%", "25%"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestUnknownFill(t *testing.T) {
	model := NewModel("tone", nil)
	model.applyStats(pipeline.Stats{BufferFill: -1})

	if !strings.Contains(model.View(), "no rate control") {
		t.Error("expected unknown fill label")
	}
}

func TestVolumeKeys(t *testing.T) {
	control := NewControl()
	model := NewModel("tone", control)

	model = press(t, model, "up")
	if model.volume != 100 {
		t.Errorf("expected volume clamped at 100, got %d", model.volume)
	}
	<-control.Changes

	model = press(t, model, "down")
	if model.volume != 95 {
		t.Errorf("expected volume 95, got %d", model.volume)
	}

	msg := <-control.Changes
	if msg.Kind != ControlVolume || msg.Volume != 95 {
		t.Errorf("unexpected control message %+v", msg)
	}
}

func TestToggleKeys(t *testing.T) {
	control := NewControl()
	model := NewModel("tone", control)

	model = press(t, model, "m")
	model = press(t, model, "s")
	model = press(t, model, "f")

	want := []ControlKind{ControlMute, ControlSlowMotion, ControlFastForward}
	for _, kind := range want {
		msg := <-control.Changes
		if msg.Kind != kind || !msg.On {
			t.Errorf("expected %v on, got %+v", kind, msg)
		}
	}

	model = press(t, model, "m")
	if msg := <-control.Changes; msg.On {
		t.Error("expected second mute press to unmute")
	}
	if model.muted {
		t.Error("expected model unmuted")
	}
}

func TestDebugToggle(t *testing.T) {
	model := NewModel("tone", nil)
	model.applyStats(pipeline.Stats{ID: "abc-123", OriginalRatio: 1, Ratio: 1})

	if strings.Contains(model.View(), "abc-123") {
		t.Error("expected debug info hidden by default")
	}
	model = press(t, model, "d")
	if !strings.Contains(model.View(), "abc-123") {
		t.Error("expected debug info after toggle")
	}
}

func TestQuitSignals(t *testing.T) {
	control := NewControl()
	model := NewModel("tone", control)

	next, cmd := model.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !next.(Model).quitting {
		t.Error("expected quitting state")
	}

	select {
	case <-control.Quit:
	default:
		t.Error("expected quit signal")
	}

	// A second quit must not block on the full channel
	model.Update(key("ctrl+c"))
	model.Update(key("ctrl+c"))
}

func TestKeysWithoutControl(t *testing.T) {
	model := NewModel("tone", nil)
	model = press(t, model, "m")
	if !model.muted {
		t.Error("expected local mute state without control")
	}
}

type fakeTarget struct {
	volume   float32
	muted    bool
	slow     bool
	nonblock bool
	err      error
}

func (f *fakeTarget) SetVolume(gain float32) { f.volume = gain }
func (f *fakeTarget) SetMute(mute bool) error {
	f.muted = mute
	return f.err
}
func (f *fakeTarget) SetSlowMotion(on bool) { f.slow = on }
func (f *fakeTarget) SetNonblocking(nonblock bool) error {
	f.nonblock = nonblock
	return f.err
}

func TestApply(t *testing.T) {
	target := &fakeTarget{}

	msgs := []ControlMsg{
		{Kind: ControlVolume, Volume: 40},
		{Kind: ControlMute, On: true},
		{Kind: ControlSlowMotion, On: true},
		{Kind: ControlFastForward, On: true},
	}
	for _, msg := range msgs {
		if err := Apply(target, msg); err != nil {
			t.Fatalf("Apply(%v): %v", msg.Kind, err)
		}
	}

	if target.volume != 0.4 {
		t.Errorf("expected volume 0.4, got %v", target.volume)
	}
	if !target.muted || !target.slow || !target.nonblock {
		t.Errorf("expected all toggles on, got %+v", target)
	}

	target.err = errors.New("device gone")
	if err := Apply(target, ControlMsg{Kind: ControlMute}); err == nil {
		t.Error("expected mute error to propagate")
	}
	if err := Apply(target, ControlMsg{Kind: ControlKind(99)}); err == nil {
		t.Error("expected error for unknown control")
	}
}

func TestRenderBar(t *testing.T) {
	if got := renderBar(50, 100, 10); got != "█████░░░░░" {
		t.Errorf("unexpected bar %q", got)
	}
	if got := renderBar(150, 100, 4); got != "████" {
		t.Errorf("expected clamped bar, got %q", got)
	}
	if got := renderBar(1, 0, 3); got != "░░░" {
		t.Errorf("expected empty bar for zero total, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if truncate("short", 10) != "short" {
		t.Error("expected short string unchanged")
	}
	if got := truncate("a very long title here", 10); got != "a very ..." {
		t.Errorf("unexpected truncation %q", got)
	}
}
