package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm prints a warning box for a disruptive action and reads one line
// from in. Only "y" or "yes" confirms.
func Confirm(in io.Reader, out io.Writer, title string, warnings []string) bool {
	width := GetTerminalWidth()

	lines := []string{
		"",
		lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true).
			Render(fmt.Sprintf("   ⚠  WARNING  ─  %s", title)),
		"",
	}
	for _, warning := range warnings {
		lines = append(lines, lipgloss.NewStyle().Foreground(TextColor).Render("   • "+warning))
	}
	lines = append(lines, "")

	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))

	fmt.Fprintln(out, box)
	fmt.Fprint(out, lipgloss.NewStyle().Foreground(WarningColor).Bold(true).Render("Proceed? [y/N]: "))

	input, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	}
	fmt.Fprintln(out, MutedStyle.Render("  Operation cancelled."))
	return false
}
