package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muurk/ucd/internal/connect"
)

// DeviceColumns are the columns of RenderDeviceTable.
var DeviceColumns = []string{"ID", "NAME", "MODEL", "ONLINE", "DISPLAY", "VOLUME", "BRIGHTNESS", "MODE"}

// DeviceRow returns the table cells for one device. Fields the device does
// not report are shown as "-".
func DeviceRow(d connect.Device) []string {
	online := "no"
	if d.Online {
		online = "yes"
	}
	display := "-"
	if on, ok := d.Shadow.Display(); ok {
		display = "off"
		if on {
			display = "on"
		}
	}
	return []string{
		d.ID,
		d.Name,
		d.Model,
		online,
		display,
		intCell(d.Shadow.Volume()),
		intCell(d.Shadow.Brightness()),
		stringCell(d.Shadow.Mode()),
	}
}

// RenderDeviceTable renders devices as a bordered table.
func RenderDeviceTable(devices []connect.Device) string {
	rows := make([][]string, len(devices))
	for i, d := range devices {
		rows[i] = DeviceRow(d)
	}
	return RenderTable(DeviceColumns, rows, func(row, col int) (lipgloss.Style, bool) {
		if col != 3 {
			return lipgloss.Style{}, false
		}
		if rows[row][3] == "yes" {
			return OnlineStyle, true
		}
		return OfflineStyle, true
	})
}

// CellStyler picks a style for a body cell. Returning false keeps the
// default style.
type CellStyler func(row, col int) (lipgloss.Style, bool)

// RenderTable renders a bordered table with styled headers. styler may be
// nil.
func RenderTable(headers []string, rows [][]string, styler CellStyler) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle.Padding(0, 1)
			}
			if styler != nil && row >= 0 && row < len(rows) {
				if style, ok := styler(row, col); ok {
					return style.Padding(0, 1)
				}
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}

func intCell(v int, ok bool) string {
	if !ok {
		return "-"
	}
	return strconv.Itoa(v)
}

func stringCell(v string, ok bool) string {
	if !ok || v == "" {
		return "-"
	}
	return v
}
