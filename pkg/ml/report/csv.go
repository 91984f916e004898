// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// Column names of the DataFrame returned by Summary.DataFrame, besides StatsFields.
const (
	CountCol  = "count"
	TargetCol = "target"
	SeriesCol = "series"
)

// DataFrame returns the statistics of the given targets (all targets if none is given) as a table with
// one row per series: columns CountCol, TargetCol, SeriesCol followed by StatsFields.
//
// Rows are sorted by target and then by series name.
func (s Summary) DataFrame(targets ...Target) dataframe.DataFrame {
	if len(targets) == 0 {
		targets = []Target{TargetWeight, TargetRequest, TargetData}
	}
	var counts []int
	var targetNames, seriesNames []string
	columns := make([][]float64, len(StatsFields))
	for _, target := range targets {
		for _, name := range s.Names(target) {
			counts = append(counts, s.Count)
			targetNames = append(targetNames, target.String())
			seriesNames = append(seriesNames, name)
			for ii, value := range s.Series[target][name].Values() {
				columns[ii] = append(columns[ii], value)
			}
		}
	}
	cols := []series.Series{
		series.New(counts, series.Int, CountCol),
		series.New(targetNames, series.String, TargetCol),
		series.New(seriesNames, series.String, SeriesCol),
	}
	for ii, field := range StatsFields {
		cols = append(cols, series.New(columns[ii], series.Float, field))
	}
	return dataframe.New(cols...)
}

// CSVReporter accumulates the rows of every summary (see Summary.DataFrame) and rewrites them all to a
// CSV file at each report.
type CSVReporter struct {
	path    string
	targets []Target
	df      *dataframe.DataFrame
}

// NewCSVReporter returns a CSVReporter writing to path the given targets (all if none is given).
func NewCSVReporter(path string, targets ...Target) *CSVReporter {
	return &CSVReporter{path: path, targets: targets}
}

// DataFrame returns all rows reported so far. It has no rows if nothing was reported yet.
func (r *CSVReporter) DataFrame() dataframe.DataFrame {
	if r.df == nil {
		return Summary{}.DataFrame(r.targets...)
	}
	return *r.df
}

// Report implements Reporter.
func (r *CSVReporter) Report(summary Summary) error {
	rows := summary.DataFrame(r.targets...)
	if rows.Err != nil {
		return errors.Wrap(rows.Err, "CSVReporter: converting summary")
	}
	if rows.Nrow() == 0 {
		return nil
	}
	if r.df == nil {
		r.df = &rows
	} else {
		all := r.df.RBind(rows)
		if all.Err != nil {
			return errors.Wrap(all.Err, "CSVReporter: appending rows")
		}
		r.df = &all
	}
	f, err := os.Create(r.path)
	if err != nil {
		return errors.Wrapf(err, "CSVReporter: creating %q", r.path)
	}
	if err = r.df.WriteCSV(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "CSVReporter: writing %q", r.path)
	}
	return errors.Wrapf(f.Close(), "CSVReporter: closing %q", r.path)
}
