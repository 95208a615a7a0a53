package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	avatarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)

	ownBubble     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	partnerBubble = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).BorderForeground(lipgloss.Color("240")).Padding(0, 1)

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			BorderStyle(lipgloss.RoundedBorder())
	enabledButton  = buttonStyle.BorderForeground(lipgloss.Color("62")).Foreground(lipgloss.Color("#FFFDF5"))
	disabledButton = buttonStyle.BorderForeground(lipgloss.Color("238")).Foreground(lipgloss.Color("240"))
)
