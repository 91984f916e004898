// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/pkg/ml/train"
	"github.com/pkg/errors"
)

// Reporter outputs summaries.
type Reporter interface {
	Report(summary Summary) error
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(summary Summary) error

// Report implements Reporter.
func (fn ReporterFunc) Report(summary Summary) error { return fn(summary) }

// ReportPriority is the priority of the loop hook registered by Attach.
const ReportPriority train.Priority = 100

// Attach registers a hook in the loop that, every time the summarizer counter reaches a multiple of
// interval, takes its Summary and passes it to all reporters.
func Attach(loop *train.Loop, summarizer Summarizer, interval int, reporters ...Reporter) {
	if interval <= 0 {
		exceptions.Panicf("report.Attach: interval must be > 0, got %d", interval)
	}
	name := fmt.Sprintf("report.Attach(every %d)", interval)
	loop.OnStep(name, ReportPriority, func(_ *train.Loop, _ []float64) error {
		count := summarizer.Counter()
		if count == 0 || count%interval != 0 {
			return nil
		}
		summary := summarizer.Summary()
		for ii, reporter := range reporters {
			if err := reporter.Report(summary); err != nil {
				return errors.WithMessagef(err, "reporter #%d (%T)", ii, reporter)
			}
		}
		return nil
	})
}

var (
	cellStyle        = lipgloss.NewStyle().Padding(0, 1)
	leftAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Left).Padding(0, 1)
	headerStyle      = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableBorderColor = "#705090"
)

// PrintReporter writes each summary as tables, one per target, to a writer.
type PrintReporter struct {
	w io.Writer
}

// NewPrintReporter returns a PrintReporter writing to w.
func NewPrintReporter(w io.Writer) *PrintReporter {
	return &PrintReporter{w: w}
}

// Report implements Reporter.
func (r *PrintReporter) Report(summary Summary) error {
	if _, err := fmt.Fprintf(r.w, "count: %s\n", humanize.Comma(int64(summary.Count))); err != nil {
		return errors.Wrap(err, "PrintReporter")
	}
	for _, target := range []Target{TargetWeight, TargetRequest, TargetData} {
		names := summary.Names(target)
		if len(names) == 0 {
			continue
		}
		headers := append([]string{target.String()}, StatsFields...)
		table := lgtable.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
			Headers(headers...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == lgtable.HeaderRow {
					return headerStyle
				}
				if col == 0 {
					return leftAlignedStyle
				}
				return cellStyle
			})
		for _, name := range names {
			row := []string{name}
			for _, value := range summary.Series[target][name].Values() {
				row = append(row, strconv.FormatFloat(value, 'g', 4, 64))
			}
			table.Row(row...)
		}
		if _, err := fmt.Fprintln(r.w, table.String()); err != nil {
			return errors.Wrap(err, "PrintReporter")
		}
	}
	return nil
}
