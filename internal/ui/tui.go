// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the pipeline monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/audiopipe/pkg/pipeline"
)

// Monitor runs the pipeline monitor
type Monitor struct {
	program *tea.Program
}

// NewMonitor creates a monitor showing title
func NewMonitor(title string, control *Control, opts ...tea.ProgramOption) *Monitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &Monitor{program: tea.NewProgram(NewModel(title, control), opts...)}
}

// Run blocks until the user quits or Stop is called
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// Update sends a pipeline snapshot to the monitor
func (m *Monitor) Update(stats pipeline.Stats) {
	m.program.Send(StatsMsg(stats))
}

// Stop quits the monitor
func (m *Monitor) Stop() {
	m.program.Quit()
}
