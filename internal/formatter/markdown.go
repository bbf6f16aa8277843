// Package formatter renders aligned markdown tables for terminal output.
package formatter

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// MaxCellWidth is the display width at which Table truncates cell content.
const MaxCellWidth = 60

// Table renders headers and rows as an aligned markdown table. Cells are
// single-lined, pipe-escaped and truncated to MaxCellWidth.
func Table(headers []string, rows [][]string) string {
	table := make([][]string, 0, len(rows)+1)
	table = append(table, cleanRow(headers))

	for _, row := range rows {
		table = append(table, cleanRow(row))
	}

	return strings.Join(render(table), "\n") + "\n"
}

// Truncate shortens s to at most width display cells, marking the cut with "...".
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}

	return runewidth.Truncate(s, width, "...")
}

func cleanRow(row []string) []string {
	cells := make([]string, len(row))

	for i, c := range row {
		c = strings.Join(strings.Fields(c), " ")
		c = Truncate(c, MaxCellWidth)
		cells[i] = strings.ReplaceAll(c, "|", `\|`)
	}

	return cells
}

// render writes table[0] as header, a separator, then the remaining rows.
func render(table [][]string) []string {
	colCount := 0
	for _, row := range table {
		colCount = max(colCount, len(row))
	}

	// Calculate max widths using display width, at least 3 for "---"
	colWidths := make([]int, colCount)
	for i := range colWidths {
		colWidths[i] = 3
	}

	for _, row := range table {
		for i, cell := range row {
			colWidths[i] = max(colWidths[i], runewidth.StringWidth(cell))
		}
	}

	result := make([]string, 0, len(table)+1)

	for i, row := range table {
		result = append(result, renderRow(row, colWidths))

		if i == 0 {
			sep := make([]string, colCount)
			for j, w := range colWidths {
				sep[j] = strings.Repeat("-", w)
			}

			result = append(result, renderRow(sep, colWidths))
		}
	}

	return result
}

func renderRow(row []string, colWidths []int) string {
	var sb strings.Builder

	sb.WriteString("|")

	for j, width := range colWidths {
		content := ""
		if j < len(row) {
			content = row[j]
		}

		sb.WriteString(" ")
		sb.WriteString(content)

		// Pad with spaces based on display width
		if padding := width - runewidth.StringWidth(content); padding > 0 {
			sb.WriteString(strings.Repeat(" ", padding))
		}

		sb.WriteString(" |")
	}

	return sb.String()
}
