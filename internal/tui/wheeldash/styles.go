package wheeldash

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("99")
	mutedColor   = lipgloss.Color("245")
	accentColor  = lipgloss.Color("212")
	warnColor    = lipgloss.Color("226")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			PaddingLeft(1).
			PaddingRight(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	drillStyle = lipgloss.NewStyle().
			Foreground(warnColor).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			PaddingLeft(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)
