package wheeldash

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

// Dashboard wraps a running bubbletea program behind ports.DisplayAdapter.
// Push hands each event to the program with tea.Program.Send, which waits
// until the program's event loop takes it; once the program has exited,
// Push returns without sending.
type Dashboard struct {
	program *tea.Program
	done    chan struct{}
	err     error
	mu      sync.Mutex
}

// Start launches the dashboard in the current terminal on its own goroutine
// and returns without waiting for it to start; events pushed before its
// event loop runs wait for it. Callers must call Close when the session
// ends.
func Start() *Dashboard {
	program := tea.NewProgram(NewModel(), tea.WithAltScreen())
	d := &Dashboard{program: program, done: make(chan struct{})}

	go func() {
		defer close(d.done)
		_, err := program.Run()
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
	}()

	return d
}

// Push implements ports.DisplayAdapter.
func (d *Dashboard) Push(event ports.DisplayEvent) {
	if d == nil || d.program == nil {
		return
	}
	select {
	case <-d.done:
		return
	default:
		d.program.Send(displayEventMsg(event))
	}
}

// Close implements ports.DisplayAdapter.
func (d *Dashboard) Close() error {
	if d == nil || d.program == nil {
		return nil
	}
	select {
	case <-d.done:
	default:
		d.program.Send(closeMsg{})
		<-d.done
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

var _ ports.DisplayAdapter = (*Dashboard)(nil)
