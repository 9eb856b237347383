// Package wheeldash is a passive bubbletea status dashboard for the wheel
// loop. It implements ports.DisplayAdapter: the loop thread pushes
// DisplayEvents into it and never waits on the renderer.
package wheeldash

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

const maxHistory = 8

type displayEventMsg ports.DisplayEvent

type closeMsg struct{}

// Model renders the most recent DisplayEvent plus a short scroll of
// preceding messages.
type Model struct {
	spinner spinner.Model
	latest  ports.DisplayEvent
	history []string
	started time.Time
	closing bool
	width   int
}

// NewModel creates a dashboard model with no events yet received.
func NewModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = drillStyle
	return Model{spinner: s, started: time.Now(), width: 80}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case displayEventMsg:
		m.latest = ports.DisplayEvent(msg)
		if m.latest.Message != "" {
			m.history = append(m.history, formatHistoryLine(m.latest))
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
		}
		return m, nil
	case closeMsg:
		m.closing = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func formatHistoryLine(e ports.DisplayEvent) string {
	return e.Timestamp.Format("15:04:05") + "  " + e.Message
}
