package wheeldash

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewheel-dev/promptwheel/internal/ports"
)

func TestUpdateStoresLatestEventAndAppendsHistory(t *testing.T) {
	m := NewModel()

	next, _ := m.Update(displayEventMsg(ports.DisplayEvent{
		CycleCount: 3,
		DrillMode:  true,
		Message:    "surveying sector",
		Timestamp:  time.Now(),
	}))
	updated := next.(Model)

	assert.Equal(t, 3, updated.latest.CycleCount)
	require.Len(t, updated.history, 1)
	assert.Contains(t, updated.history[0], "surveying sector")
}

func TestUpdateTrimsHistoryBeyondCap(t *testing.T) {
	m := NewModel()
	for i := 0; i < maxHistory+3; i++ {
		next, _ := m.Update(displayEventMsg(ports.DisplayEvent{Message: "tick", Timestamp: time.Now()}))
		m = next.(Model)
	}
	assert.Len(t, m.history, maxHistory)
}

func TestUpdateQuitsOnQKey(t *testing.T) {
	m := NewModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
}

func TestUpdateCloseMsgQuits(t *testing.T) {
	m := NewModel()
	next, cmd := m.Update(closeMsg{})
	updated := next.(Model)
	assert.True(t, updated.closing)
	require.NotNil(t, cmd)
}
