// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"

	"github.com/gomlx/nnfunctor/pkg/core/arrays"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes a series of snapshots: mean, standard deviation, maximum and minimum over all values
// of all snapshots, and the same over the differences between successive snapshots.
//
// The standard deviations are population ones (not the unbiased estimate).
type Stats struct {
	Mean, Std, Max, Min                 float64
	DiffMean, DiffStd, DiffMax, DiffMin float64
}

// StatsFields are the names of the fields of Stats, in the order returned by Stats.Values.
var StatsFields = []string{"mean", "std", "max", "min", "diff_mean", "diff_std", "diff_max", "diff_min"}

// Mode selects which statistics of a series are reported in plots: of the values themselves (ModeOrigin)
// or of their successive differences (ModeDiff).
type Mode int

const (
	ModeOrigin Mode = iota
	ModeDiff
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeOrigin:
		return "origin"
	case ModeDiff:
		return "diff"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "origin" or "diff".
func ParseMode(name string) (Mode, error) {
	switch name {
	case "origin":
		return ModeOrigin, nil
	case "diff":
		return ModeDiff, nil
	}
	return 0, errors.Errorf("unknown report mode %q, valid values are \"origin\" or \"diff\"", name)
}

// Values returns all the statistics in the order of StatsFields.
func (s Stats) Values() []float64 {
	return []float64{s.Mean, s.Std, s.Max, s.Min, s.DiffMean, s.DiffStd, s.DiffMax, s.DiffMin}
}

// ForMode returns mean, std, max and min of the values (ModeOrigin) or of the differences (ModeDiff).
func (s Stats) ForMode(mode Mode) (mean, std, maxV, minV float64) {
	if mode == ModeDiff {
		return s.DiffMean, s.DiffStd, s.DiffMax, s.DiffMin
	}
	return s.Mean, s.Std, s.Max, s.Min
}

// ComputeStats summarizes the snapshots, which must all have the same shape.
//
// The differences are taken elementwise between successive snapshots. With a single snapshot there are no
// differences, and the difference statistics are all 0. With no snapshots, all statistics are 0.
func ComputeStats(snapshots []arrays.Array) Stats {
	var s Stats
	if len(snapshots) == 0 {
		return s
	}
	values := make([]float64, 0, len(snapshots)*snapshots[0].Size())
	for _, snapshot := range snapshots {
		values = append(values, snapshot.Flat()...)
	}
	s.Mean, s.Std = stat.PopMeanStdDev(values, nil)
	s.Max, s.Min = floats.Max(values), floats.Min(values)

	if len(snapshots) < 2 {
		return s
	}
	diffs := make([]float64, 0, (len(snapshots)-1)*snapshots[0].Size())
	for ii := 1; ii < len(snapshots); ii++ {
		diffs = append(diffs, arrays.Sub(snapshots[ii], snapshots[ii-1]).Flat()...)
	}
	s.DiffMean, s.DiffStd = stat.PopMeanStdDev(diffs, nil)
	s.DiffMax, s.DiffMin = floats.Max(diffs), floats.Min(diffs)
	return s
}
