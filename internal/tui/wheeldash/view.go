package wheeldash

import (
	"fmt"
	"strings"
)

func (m Model) View() string {
	if m.closing {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("promptwheel"))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	row("cycle", fmt.Sprintf("%d", m.latest.CycleCount))
	row("phase", m.latest.SessionPhase)

	if m.latest.DrillMode {
		b.WriteString(labelStyle.Render("drill"))
		b.WriteString(drillStyle.Render(m.latest.TrajectoryName))
		b.WriteString("\n")
		if m.latest.CurrentStep != "" {
			row("step", m.latest.CurrentStep)
		}
	}

	b.WriteString("\n")
	b.WriteString(m.spinner.View())
	if m.latest.Message != "" {
		b.WriteString(messageStyle.Render(m.latest.Message))
	}
	b.WriteString("\n")

	for _, line := range m.history {
		b.WriteString(messageStyle.Render(line))
		b.WriteString("\n")
	}

	b.WriteString(footerStyle.Render("q to quit"))
	return b.String()
}
