// SPDX-License-Identifier: MIT
package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"amplifier/internal/health"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0A0A0")).
			Width(10)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Bold(true)

	barFill  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	barHot   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
	barEmpty = lipgloss.NewStyle().Foreground(lipgloss.Color("#3C3C3C"))
)

// meterFloorDB is the bottom of the level bars.
const meterFloorDB = -60.0

// hotDB is where a level bar turns red.
const hotDB = -6.0

var sparks = []rune("▁▂▃▄▅▆▇█")

func statusStyle(st health.Status) lipgloss.Style {
	switch st {
	case health.OK:
		return okStyle
	case health.NoiseOnly, health.NoData:
		return warnStyle
	default:
		return errStyle
	}
}

// levelCells maps a linear level to the number of filled cells on a dB
// scale from meterFloorDB to 0.
func levelCells(level float64, width int) int {
	if level <= 0 || width <= 0 {
		return 0
	}
	db := 20 * math.Log10(level)
	frac := (db - meterFloorDB) / -meterFloorDB
	return int(math.Round(min(max(frac, 0), 1) * float64(width)))
}

// levelBar draws a VU bar with a peak marker.
func levelBar(vu, peak float64, width int) string {
	filled := levelCells(vu, width)
	peakAt := levelCells(peak, width) - 1
	hotAt := int(math.Round((hotDB - meterFloorDB) / -meterFloorDB * float64(width)))

	var sb strings.Builder
	for i := range width {
		switch {
		case i < filled && i >= hotAt:
			sb.WriteString(barHot.Render("█"))
		case i < filled:
			sb.WriteString(barFill.Render("█"))
		case i == peakAt:
			sb.WriteString(highlightStyle.Render("│"))
		default:
			sb.WriteString(barEmpty.Render("·"))
		}
	}
	return sb.String()
}

// sparkline renders normalized band values as block characters.
func sparkline(bands []float64) string {
	out := make([]rune, len(bands))
	top := len(sparks) - 1
	for i, v := range bands {
		idx := int(math.Round(min(max(v, 0), 1) * float64(top)))
		out[i] = sparks[idx]
	}
	return string(out)
}
