// Package report writes summary vectors and cases to files: plots through
// gonum/plot and CSV tables through the TextExporter implementations.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/reservoir/internal/fsutil"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/summary"
)

// Plotter renders vector plots at a fixed page size and writes report files
// through FS.
type Plotter struct {
	Width  vg.Length
	Height vg.Length
	FS     fsutil.FileSystem
}

// NewPlotter returns a plotter writing to disk with the page size given in
// centimetres.
func NewPlotter(widthCm, heightCm float64) *Plotter {
	return &Plotter{
		Width:  vg.Length(widthCm) * vg.Centimeter,
		Height: vg.Length(heightCm) * vg.Centimeter,
		FS:     fsutil.OSFileSystem{},
	}
}

var defaultPlotter = NewPlotter(16, 10)

// WriteVectorPlot draws the named vectors resampled at freq into one plot
// at the default size. The file format follows the extension of path.
func WriteVectorPlot(path string, st *summary.Store, names []string, freq summary.Frequency) error {
	return defaultPlotter.WriteVectorPlot(path, st, names, freq)
}

// WriteVectorPlot draws the named vectors resampled at freq into one plot.
// The x axis is calendar time; the y axis is labelled with the common unit
// when all vectors share one.
func (p *Plotter) WriteVectorPlot(path string, st *summary.Store, names []string, freq summary.Frequency) error {
	if len(names) == 0 {
		return fmt.Errorf("no vectors to plot")
	}
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "" {
		return fmt.Errorf("plot %s: no file extension to pick a format from", path)
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("%s (%s)", filepath.Base(path), freq)
	pl.X.Label.Text = "Date"
	pl.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}

	units := make(map[string]bool)
	for i, name := range names {
		series, err := st.Resample(name, freq)
		if err != nil {
			return err
		}
		unit, err := st.Unit(name)
		if err != nil {
			return err
		}
		units[unit] = true

		pts := make(plotter.XYs, series.Len())
		for n, t := range st.Dates(series) {
			pts[n] = plotter.XY{X: float64(t.Unix()), Y: series.Values[n]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %q: %w", name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		pl.Add(line)
		pl.Legend.Add(name, line)
	}
	if len(units) == 1 {
		for u := range units {
			pl.Y.Label.Text = u
		}
	}
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	pl.Add(plotter.NewGrid())

	wt, err := pl.WriterTo(p.Width, p.Height, format)
	if err != nil {
		return fmt.Errorf("plot %s: %w", path, err)
	}
	if err := p.create(path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	}); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	monitoring.Logf("[report] wrote %s (%d vectors at %s)", path, len(names), freq)
	return nil
}

// WriteText writes e to a new file at path on disk.
func WriteText(path string, e simcase.TextExporter) error {
	return defaultPlotter.WriteText(path, e)
}

// WriteText writes e to a new file at path.
func (p *Plotter) WriteText(path string, e simcase.TextExporter) error {
	return p.create(path, e.ExportText)
}

// create writes a file with fill, creating parent directories. A partially
// written file is removed on failure.
func (p *Plotter) create(path string, fill func(io.Writer) error) (err error) {
	if err := p.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := p.FS.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = p.FS.Remove(path)
		}
	}()
	return fill(f)
}
