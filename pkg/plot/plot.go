// Package plot renders measurement figures as image files.
package plot

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/itohio/sdmrr/pkg/analysis"
	"github.com/itohio/sdmrr/pkg/dsp"
	"github.com/itohio/sdmrr/pkg/history"
)

// MaxTracePoints is the number of points a trace is reduced to for plotting.
const MaxTracePoints = 4000

var (
	colorData = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorFit  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorImag = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorAbs  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// Decay plots echo magnitudes against echo time together with the fitted
// exponential.
func Decay(path string, times, mags []float64, fit analysis.Fit, f0 float64) error {
	if len(times) != len(mags) {
		return fmt.Errorf("plot: %d times for %d magnitudes", len(times), len(mags))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("CPMG f0 = %.1f Hz, T2 = %.4f s", f0, fit.T2)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Echo magnitude"

	data := make(plotter.XYs, len(mags))
	model := make(plotter.XYs, len(mags))
	for i := range mags {
		data[i] = plotter.XY{X: times[i], Y: mags[i]}
		model[i] = plotter.XY{X: times[i], Y: fit.Eval(times[i])}
	}

	scatter, err := plotter.NewScatter(data)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Length(1)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Color = colorData
	p.Add(scatter)
	p.Legend.Add("echoes", scatter)

	if fit.B > 0 {
		line, err := plotter.NewLine(model)
		if err != nil {
			return err
		}
		line.Color = colorFit
		p.Add(line)
		p.Legend.Add("fit", line)
	}

	return save(p, 8*vg.Inch, 6*vg.Inch, path)
}

// History plots a T2 series against wall clock time.
func History(path, title string, s *history.Series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "T2 (s)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02\n15:04"}

	xys := make(plotter.XYs, s.Len())
	for i := range xys {
		xys[i] = plotter.XY{X: s.Times[i], Y: s.Values[i]}
	}

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return err
	}
	line.Color = colorData
	points.Shape = draw.CircleGlyph{}
	points.Color = colorData
	p.Add(line, points)
	p.Add(plotter.NewGrid())

	return save(p, 10*vg.Inch, 5*vg.Inch, path)
}

// Trace plots the real, imaginary and magnitude parts of a processed trace.
func Trace(path string, trace []complex128, fs float64) error {
	if fs <= 0 {
		return fmt.Errorf("plot: sample rate %g", fs)
	}
	idx := dsp.DownsampleIndex(len(trace), MaxTracePoints)
	pts := dsp.Downsample(nil, trace, MaxTracePoints)
	mags := dsp.Downsample(nil, dsp.Abs(trace), MaxTracePoints)
	re := make(plotter.XYs, len(idx))
	im := make(plotter.XYs, len(idx))
	abs := make(plotter.XYs, len(idx))
	for i, j := range idx {
		t := float64(j) / fs
		re[i] = plotter.XY{X: t, Y: real(pts[i])}
		im[i] = plotter.XY{X: t, Y: imag(pts[i])}
		abs[i] = plotter.XY{X: t, Y: mags[i]}
	}

	p := plot.New()
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Signal"

	for _, s := range []struct {
		name string
		xys  plotter.XYs
		c    color.Color
	}{
		{"real", re, colorData},
		{"imag", im, colorImag},
		{"abs", abs, colorAbs},
	} {
		line, err := plotter.NewLine(s.xys)
		if err != nil {
			return err
		}
		line.Color = s.c
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	return save(p, 10*vg.Inch, 5*vg.Inch, path)
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create figure directory: %w", err)
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
