package scoring

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const breakdownHeader = "Game - Category (Level)"

type BreakdownRow struct {
	Label  string  `json:"label"`
	Points float64 `json:"points"`
}

// FormatBreakdown renders the rows as a fixed width table, notices first.
// The label column is as wide as the longest label.
func FormatBreakdown(rows []BreakdownRow, notices []string) string {
	width := 0
	for _, row := range rows {
		width = max(width, utf8.RuneCountInString(row.Label))
	}
	lines := make([]string, 0, len(notices)+len(rows)+2)
	lines = append(lines, notices...)
	lines = append(lines,
		fmt.Sprintf("%-*s | Points", width, breakdownHeader),
		fmt.Sprintf("%s | ------", strings.Repeat("-", width)),
	)
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("%-*s | %6.2f", width, row.Label, row.Points))
	}
	return strings.Join(lines, "\n")
}
