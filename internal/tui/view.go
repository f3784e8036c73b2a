package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/ucd/internal/connect"
	"github.com/muurk/ucd/internal/controls"
)

// View renders the dashboard
func (m Model) View() string {
	return RenderApplicationContainer(m.buildContent(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m Model) buildContent() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Displays (%d)", len(m.Devices))))
	b.WriteString("\n")

	if len(m.Devices) == 0 {
		b.WriteString(RowStyle.Render("No displays found. Press r to refresh."))
		b.WriteString("\n")
	}
	for i, d := range m.Devices {
		b.WriteString(m.renderRow(d, i == m.Cursor))
		b.WriteString("\n")
	}

	if d, ok := m.Selected(); ok {
		b.WriteString(m.renderDetail(d))
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) renderRow(d connect.Device, selected bool) string {
	display := "?"
	if on, ok := d.Shadow.Display(); ok {
		display = "off"
		if on {
			display = "on"
		}
	}
	volume := "-"
	if v, ok := d.Shadow.Volume(); ok {
		volume = fmt.Sprintf("%d", v)
	}

	line := fmt.Sprintf("%-24s %-16s display %-4s vol %-4s", truncate(displayName(d), 24), truncate(d.Model, 16), display, volume)
	switch {
	case selected:
		return SelectedRowStyle.Render("→ " + line)
	case !d.Online:
		return OfflineStyle.PaddingLeft(2).Render(line + " (offline)")
	default:
		return RowStyle.Render(line)
	}
}

func (m Model) renderDetail(d connect.Device) string {
	lines := []string{lipgloss.NewStyle().Bold(true).Render(displayName(d) + "  " + d.ID)}
	for _, c := range controls.For(d, m.ctl.Catalog(), nil) {
		if c.Kind == controls.KindButton {
			continue
		}
		v, ok := controls.Value(c, d)
		if !ok {
			continue
		}
		lines = append(lines, DetailKeyStyle.Render(c.Label+":")+" "+formatValue(c, v))
	}

	width := max(min(m.Width, MaxContentWidth)-8, 40)
	return DetailBoxStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderStatus() string {
	switch {
	case m.Err != nil:
		return ErrorStyle.Render("✗ " + m.Err.Error())
	case m.Refreshing || m.Pending > 0:
		return m.Spinner.View() + " " + m.Status
	case m.Status != "":
		return StatusStyle.Render(m.Status)
	}
	return ""
}

func formatValue(c controls.Control, v any) string {
	if c.Range != nil && c.Kind == controls.KindNumber {
		return fmt.Sprintf("%v / %.0f", v, c.Range.Max)
	}
	if b, ok := v.(bool); ok {
		if b {
			return "on"
		}
		return "off"
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
