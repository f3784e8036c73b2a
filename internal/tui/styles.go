package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ucd/internal/version"
)

// AppName is shown in the dashboard header.
const AppName = "UNIFI CONNECT DASHBOARD"

// Layout constants for responsive terminal width
const (
	MinTerminalWidth = 72
	MaxContentWidth  = 120
)

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	SecondaryColor = lipgloss.Color("#43BF6D") // Green
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF0000") // Red
	TextColor      = lipgloss.Color("#FFFFFF") // White
	SubtleColor    = lipgloss.Color("#626262") // Gray
	BorderColor    = lipgloss.Color("#7D56F4") // Purple (same as primary)
	HighlightColor = lipgloss.Color("#43BF6D") // Green (same as secondary)
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			MarginBottom(1)

	RowStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(TextColor)

	SelectedRowStyle = lipgloss.NewStyle().
				Foreground(HighlightColor).
				Bold(true)

	OfflineStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	DetailBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 2).
			MarginTop(1)

	DetailKeyStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Width(14)

	StatusStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)
)

// RenderApplicationContainer wraps a screen in the full-terminal frame:
// header with name and version, content, and a footer with help text.
func RenderApplicationContainer(content, footerText string, width, height int) string {
	width = max(width, MinTerminalWidth)
	height = max(height, 10)

	header := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(BorderColor).
		Width(width-4).
		Padding(0, 1).
		Render(lipgloss.NewStyle().Foreground(TextColor).Bold(true).Render(AppName + " " + version.Version))

	footer := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(BorderColor).
		Width(width-4).
		Padding(0, 1).
		Render(lipgloss.NewStyle().Foreground(SubtleColor).Render(footerText))

	body := lipgloss.NewStyle().Width(width - 4).Render(content)

	bordered := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		Width(width - 2).
		Height(height - 2).
		AlignVertical(lipgloss.Top).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, body, footer))

	return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, bordered)
}
