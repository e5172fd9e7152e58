// ABOUTME: Bubbletea model for the pipeline monitor
// ABOUTME: Shows buffer fill, ratio and drop counters and maps keys to controls
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Resonate-Protocol/audiopipe/pkg/pipeline"
)

// Model represents the monitor state
type Model struct {
	title string

	// Latest pipeline snapshot
	stats pipeline.Stats
	seen  bool

	// Controls
	volume     int
	muted      bool
	slowMotion bool
	fastFwd    bool
	control    *Control

	showDebug bool
	quitting  bool

	// Dimensions
	width  int
	height int
}

// StatsMsg delivers a new pipeline snapshot
type StatsMsg pipeline.Stats

type tickMsg time.Time

// NewModel creates a monitor model. control may be nil.
func NewModel(title string, control *Control) Model {
	return Model{
		title:   title,
		volume:  100,
		control: control,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatsMsg:
		m.applyStats(pipeline.Stats(msg))
	case tickMsg:
		return m, tickEvery()
	}

	return m, nil
}

func (m *Model) applyStats(s pipeline.Stats) {
	m.stats = s
	m.seen = true
	m.muted = s.State == pipeline.StateMuted
	m.slowMotion = s.SlowMotion
	m.fastFwd = s.Sync == pipeline.SyncNonblocking
	m.volume = int(s.Volume*100 + 0.5)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.control != nil {
			select {
			case m.control.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = min(100, m.volume+5)
		m.send(ControlMsg{Kind: ControlVolume, Volume: m.volume})
	case "down":
		m.volume = max(0, m.volume-5)
		m.send(ControlMsg{Kind: ControlVolume, Volume: m.volume})
	case "m":
		m.muted = !m.muted
		m.send(ControlMsg{Kind: ControlMute, On: m.muted})
	case "s":
		m.slowMotion = !m.slowMotion
		m.send(ControlMsg{Kind: ControlSlowMotion, On: m.slowMotion})
	case "f":
		m.fastFwd = !m.fastFwd
		m.send(ControlMsg{Kind: ControlFastForward, On: m.fastFwd})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// send never blocks the UI; requests are dropped if nobody is listening
func (m Model) send(msg ControlMsg) {
	if m.control == nil {
		return
	}
	select {
	case m.control.Changes <- msg:
	default:
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// View renders the monitor
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("audiopipe " + truncate(m.title, 48)))
	b.WriteString("\n\n")

	if !m.seen {
		b.WriteString(valueStyle.Render("Waiting for pipeline..."))
		b.WriteString("\n")
		b.WriteString(m.renderHelp())
		return b.String()
	}

	s := m.stats
	field(&b, "State", m.renderState())
	field(&b, "Driver", fmt.Sprintf("%s (%s%s)", s.Driver, s.Sync, threadedLabel(s.Threaded)))
	field(&b, "Resampler", s.Resampler)
	field(&b, "Ratio", m.renderRatio())
	field(&b, "Buffer", m.renderFill())
	field(&b, "Volume", fmt.Sprintf("[%s] %d%%", renderBar(m.volume, 100, 10), m.volume))
	b.WriteString("\n")

	field(&b, "Frames", fmt.Sprintf("in %d  out %d", s.Submitted, s.Written))
	losses := fmt.Sprintf("dropped chunks %d  short-write frames %d", s.Dropped, s.ShortWrites)
	if s.Dropped > 0 || s.ShortWrites > 0 {
		field(&b, "Losses", warnStyle.Render(losses))
	} else {
		field(&b, "Losses", losses)
	}

	if m.showDebug {
		b.WriteString("\n")
		b.WriteString(m.renderDebug())
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-10s", name+":")))
	b.WriteString(" ")
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func threadedLabel(threaded bool) string {
	if threaded {
		return ", threaded"
	}
	return ""
}

func (m Model) renderState() string {
	state := m.stats.State.String()
	if m.stats.State == pipeline.StateDisabled {
		return warnStyle.Render(state)
	}

	var flags []string
	if m.slowMotion {
		flags = append(flags, "slow motion")
	}
	if m.fastFwd {
		flags = append(flags, "fast forward")
	}
	if len(flags) > 0 {
		state += " [" + strings.Join(flags, ", ") + "]"
	}
	return state
}

func (m Model) renderRatio() string {
	s := m.stats
	if s.OriginalRatio == 0 {
		return "-"
	}
	adj := (s.Ratio/s.OriginalRatio - 1) * 100
	return fmt.Sprintf("%.6f (%+.3f%%)", s.Ratio, adj)
}

func (m Model) renderFill() string {
	if m.stats.BufferFill < 0 {
		return "unknown (no rate control)"
	}
	pct := int(m.stats.BufferFill*100 + 0.5)
	return fmt.Sprintf("[%s] %d%%", renderBar(pct, 100, 20), pct)
}

func (m Model) renderDebug() string {
	s := m.stats
	var b strings.Builder
	field(&b, "ID", s.ID)
	field(&b, "Chunk", fmt.Sprintf("%d samples", s.ChunkSamples))
	field(&b, "Queued", fmt.Sprintf("%d chunks", s.Queued))
	field(&b, "Original", fmt.Sprintf("%.6f", s.OriginalRatio))
	return b.String()
}

func (m Model) renderHelp() string {
	return "\n" + helpStyle.Render("↑/↓:Volume  m:Mute  s:Slow motion  f:Fast forward  d:Debug  q:Quit") + "\n"
}

// Utility functions
func renderBar(value, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := max(0, min(width, (value*width)/total))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
