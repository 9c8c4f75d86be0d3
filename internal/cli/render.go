package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/pipeline"
)

const rule = "═══════════════════════════════════════════════════════════"

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment, colorize bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if colorize {
		tw.SetStyle(table.StyleRounded)
		tw.Style().Format.Header = text.FormatUpper
		tw.Style().Color.Header = text.Colors{text.Bold}
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func printBanner(w io.Writer, cfg model.Config, records, events int) {
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "  Meteora Enrichment Run\n")
	fmt.Fprintf(w, "%s\n\n", rule)
	fmt.Fprintf(w, "  Meteorites:   %s (%d rows)\n", cfg.Inputs.Meteorites, records)
	fmt.Fprintf(w, "  Events:       %s (%d rows)\n", cfg.Inputs.Events, events)
	fmt.Fprintf(w, "  Snapshot:     %s\n", cfg.Store.Path)
	fmt.Fprintf(w, "  Mode:         %s\n", cfg.Pipeline.Mode)
	fmt.Fprintf(w, "  Workers:      %d\n", cfg.Pipeline.Workers)
	if cfg.Pipeline.Mode != model.ModeSkeleton {
		fmt.Fprintf(w, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintln(w)
}

func summaryRows(s *pipeline.Summary) [][]string {
	n := strconv.Itoa
	return [][]string{
		{"Records read", n(s.Records)},
		{"Linked to an impact", n(s.Matched)},
		{"Impact-only records", n(s.Synthetic)},
		{"Selected (" + s.Mode + ")", n(s.Selected)},
		{"Already persisted", n(s.Skipped)},
		{"Enriched", n(s.Enriched)},
		{"Rejected as irrelevant", n(s.Rejected)},
		{"Skeleton", n(s.Skeleton)},
		{"Generation failed", n(s.OracleFailed)},
		{"Failed", n(s.Failed)},
		{"Persisted this run", n(s.Persisted)},
		{"Snapshot size", n(s.SnapshotSize)},
	}
}

func printSummary(w io.Writer, s *pipeline.Summary, colorize bool) {
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "  Run Complete (%s)\n", s.RunID)
	fmt.Fprintf(w, "%s\n\n", rule)
	fmt.Fprintln(w, renderTable([]string{"Outcome", "Count"}, summaryRows(s), []columnAlignment{alignLeft, alignRight}, colorize))
	fmt.Fprintf(w, "\n  Duration:  %v\n", s.Duration.Round(time.Millisecond))
	if s.FlushErrors > 0 {
		fmt.Fprintf(w, "  Flush errors: %d\n", s.FlushErrors)
	}

	for _, f := range s.Failures {
		fmt.Fprintf(w, "✗ %s [%s]: %s\n", f.Key, f.Outcome, f.Error)
	}
	fmt.Fprintln(w)
}
