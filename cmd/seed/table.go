package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jdholdren/pulse/internal/pulse"
)

var summaryHeader = []string{"SOURCE", "STATUS", "FETCHED", "INSERTED", "UPDATED", "SKIPPED", "SIMULATED", "FAILED", "MS"}

// writeSummary prints one row per source and a totals row, padded by display
// width so names outside ascii still line up.
func writeSummary(w io.Writer, s pulse.SeedSummary) {
	rows := [][]string{summaryHeader}
	for _, r := range s.Results {
		status := "-"
		if r.HTTPStatus != 0 {
			status = strconv.Itoa(r.HTTPStatus)
		}
		rows = append(rows, metricsRow(r.SourceName, status, r.Metrics, strconv.FormatInt(r.DurationMs, 10)))
	}
	rows = append(rows, metricsRow("TOTAL", "", s.Totals, ""))

	widths := make([]int, len(summaryHeader))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	mode := "live"
	if s.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "run %s (%s)\n", s.RunID, mode)
	if s.Bootstrap != nil {
		fmt.Fprintf(w, "bootstrap: matched=%d upserted=%d modified=%d\n",
			s.Bootstrap.Matched, s.Bootstrap.Upserted, s.Bootstrap.Modified)
	}

	for _, row := range rows {
		var sb strings.Builder
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}

	for _, r := range s.Results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", r.SourceID, r.Error)
		}
	}
}

func metricsRow(name, status string, m pulse.Metrics, ms string) []string {
	return []string{
		name,
		status,
		strconv.Itoa(m.Fetched),
		strconv.Itoa(m.Inserted),
		strconv.Itoa(m.Updated),
		strconv.Itoa(m.Skipped),
		strconv.Itoa(m.Simulated),
		strconv.Itoa(m.Failed),
		ms,
	}
}
