package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
)

// Result is a success or failure box printed after a command.
type Result struct {
	Type            ResultType
	Title           string            // e.g., "display_off sent to Lobby"
	Details         map[string]string // rendered in key order
	Error           error             // failure results only
	Troubleshooting []string          // failure results only
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details map[string]string) *Result {
	return &Result{
		Type:    ResultSuccess,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail adds a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	if r.Details == nil {
		r.Details = make(map[string]string)
	}
	r.Details[key] = value
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	if r.Type == ResultFailure {
		return r.renderFailure()
	}
	return r.renderSuccess()
}

func (r *Result) renderSuccess() string {
	lines := []string{
		"",
		SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title)),
		"",
	}
	lines = append(lines, r.detailLines()...)
	lines = append(lines, "")
	return r.box(SuccessColor, lines)
}

func (r *Result) renderFailure() string {
	lines := []string{
		"",
		ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)),
		"",
	}
	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}
	lines = append(lines, r.detailLines()...)
	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(), "")
	}
	return r.box(ErrorColor, lines)
}

func (r *Result) detailLines() []string {
	lines := make([]string, 0, len(r.Details))
	for _, key := range sortedKeys(r.Details) {
		lines = append(lines,
			ResultKeyStyle.Render(fmt.Sprintf("   %s:", key))+" "+ResultValueStyle.Render(r.Details[key]))
	}
	return lines
}

func (r *Result) box(color lipgloss.Color, lines []string) string {
	width := max(r.Width, MinTerminalWidth)
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

func (r *Result) renderTroubleshootingBox() string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(max(max(r.Width, MinTerminalWidth)-12, 40)).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// RenderSuccess renders a success box with the given title and details
func RenderSuccess(title string, details map[string]string) string {
	return NewSuccessResult(title, details).Render()
}

// RenderFailure renders a failure box with the given title, error, and troubleshooting tips
func RenderFailure(title string, err error, troubleshooting []string) string {
	return NewFailureResult(title, err, troubleshooting).Render()
}
