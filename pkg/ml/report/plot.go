// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"image/color"
	"maps"
	"os"
	"regexp"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"k8s.io/klog/v2"
)

// PlotColumns is the number of plots per row in the image generated by PlotReporter.
var PlotColumns = 3

// Size of each plot in the image generated by PlotReporter.
var (
	PlotWidth  = 4 * vg.Inch
	PlotHeight = 3 * vg.Inch
)

var (
	minMaxBandColor = color.RGBA{R: 255, A: 26}
	stdBandColor    = color.RGBA{B: 255, A: 51}
)

type historyPoint struct {
	count                 int
	mean, std, maxV, minV float64
}

// PlotReporter keeps the history of the series of one target, and at each report plots all of them into
// a PNG image: for each series the mean line, a band of one standard deviation around it, and the band
// between minimum and maximum.
type PlotReporter struct {
	path    string
	target  Target
	mode    Mode
	filters []*regexp.Regexp
	history map[string][]historyPoint
}

// NewPlotReporter returns a PlotReporter that writes to the PNG file at path the series of the given target,
// using the statistics of the values or of their differences, according to mode.
//
// Only series whose name matches one of the filters (regular expressions, matched anywhere in the name)
// are plotted. If no filter is given, all series are plotted.
func NewPlotReporter(path string, target Target, mode Mode, filters ...string) (*PlotReporter, error) {
	r := &PlotReporter{
		path:    path,
		target:  target,
		mode:    mode,
		history: make(map[string][]historyPoint),
	}
	for _, filter := range filters {
		re, err := regexp.Compile(filter)
		if err != nil {
			return nil, errors.Wrapf(err, "NewPlotReporter: invalid filter %q", filter)
		}
		r.filters = append(r.filters, re)
	}
	return r, nil
}

func (r *PlotReporter) match(name string) bool {
	if len(r.filters) == 0 {
		return true
	}
	for _, re := range r.filters {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// SeriesNames returns the names of the series plotted so far, sorted.
func (r *PlotReporter) SeriesNames() []string {
	return slices.Sorted(maps.Keys(r.history))
}

// Report implements Reporter.
func (r *PlotReporter) Report(summary Summary) error {
	for _, name := range summary.Names(r.target) {
		if !r.match(name) {
			continue
		}
		mean, std, maxV, minV := summary.Series[r.target][name].ForMode(r.mode)
		r.history[name] = append(r.history[name], historyPoint{
			count: summary.Count, mean: mean, std: std, maxV: maxV, minV: minV})
	}
	if len(r.history) == 0 {
		klog.Warningf("PlotReporter(%s): no series of target %s to plot", r.path, r.target)
		return nil
	}
	return r.save()
}

func (r *PlotReporter) plotSeries(name string) (*plot.Plot, error) {
	points := r.history[name]
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "count"
	meanXYs := make(plotter.XYs, len(points))
	stdBand := make(plotter.XYs, 2*len(points))
	minMaxBand := make(plotter.XYs, 2*len(points))
	last := 2*len(points) - 1
	for ii, pt := range points {
		x := float64(pt.count)
		meanXYs[ii] = plotter.XY{X: x, Y: pt.mean}
		stdBand[ii] = plotter.XY{X: x, Y: pt.mean + pt.std}
		stdBand[last-ii] = plotter.XY{X: x, Y: pt.mean - pt.std}
		minMaxBand[ii] = plotter.XY{X: x, Y: pt.maxV}
		minMaxBand[last-ii] = plotter.XY{X: x, Y: pt.minV}
	}
	for _, band := range []struct {
		xys   plotter.XYs
		color color.Color
	}{{minMaxBand, minMaxBandColor}, {stdBand, stdBandColor}} {
		polygon, err := plotter.NewPolygon(band.xys)
		if err != nil {
			return nil, err
		}
		polygon.Color = band.color
		polygon.LineStyle.Width = 0
		p.Add(polygon)
	}
	line, err := plotter.NewLine(meanXYs)
	if err != nil {
		return nil, err
	}
	p.Add(line)
	p.Legend.Add(r.mode.String()+" mean", line)
	return p, nil
}

func (r *PlotReporter) save() error {
	names := r.SeriesNames()
	cols := min(PlotColumns, len(names))
	rows := (len(names) + cols - 1) / cols
	img := vgimg.New(PlotWidth*vg.Length(cols), PlotHeight*vg.Length(rows))
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: rows, Cols: cols, PadX: vg.Millimeter, PadY: vg.Millimeter}
	for ii, name := range names {
		p, err := r.plotSeries(name)
		if err != nil {
			return errors.Wrapf(err, "PlotReporter: plotting series %q", name)
		}
		p.Draw(tiles.At(dc, ii%cols, ii/cols))
	}
	f, err := os.Create(r.path)
	if err != nil {
		return errors.Wrapf(err, "PlotReporter: creating %q", r.path)
	}
	if _, err = (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "PlotReporter: writing %q", r.path)
	}
	return errors.Wrapf(f.Close(), "PlotReporter: closing %q", r.path)
}
