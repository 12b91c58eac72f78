package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorUrgent = lipgloss.Color("196") // red
	colorWarn   = lipgloss.Color("214") // orange
	colorOK     = lipgloss.Color("46")  // green
	colorMuted  = lipgloss.Color("240") // gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingLeft(1).
			PaddingRight(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			PaddingLeft(1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorWarn).
			PaddingLeft(1)

	treeRepoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("cyan"))

	treeUrgentRepoStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorUrgent)

	treePRStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Background(lipgloss.Color("237"))

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorUrgent)
)

func stateColor(s AppState) lipgloss.Color {
	switch s {
	case StateUrgent, StateInvalidCredentials:
		return colorUrgent
	case StateNetworkError, StateRefreshing:
		return colorWarn
	case StateNoActionNeeded:
		return colorOK
	default:
		return colorMuted
	}
}
