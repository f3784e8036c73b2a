package ui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header is a command banner with a title, the command line and the
// parameters it runs against (controller, site, device).
type Header struct {
	Title   string            // e.g., "DEVICE ACTION"
	Command string            // e.g., "ucd action d1 reboot"
	Params  map[string]string // e.g., {"Controller": "192.168.1.1", "Site": "default"}
	Width   int
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string, params map[string]string) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := max(h.Width, MinTerminalWidth)

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	commandLine := HeaderCommandStyle.Render(h.Command)
	topSection := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	content := topSection
	if len(h.Params) > 0 {
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", max(width-6, 10)))

		paramLines := make([]string, 0, len(h.Params))
		for _, key := range sortedKeys(h.Params) {
			paramLines = append(paramLines,
				HeaderParamKeyStyle.Render(key+":")+" "+HeaderParamValueStyle.Render(h.Params[key]))
		}
		content = lipgloss.JoinVertical(lipgloss.Left, topSection, divider, strings.Join(paramLines, "\n"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
