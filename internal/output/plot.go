package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/floats"
)

var componentStyles = []chart.Style{
	{StrokeColor: chart.ColorBlue, StrokeWidth: 2.0},
	{StrokeColor: chart.ColorRed, StrokeWidth: 2.0},
	{StrokeColor: drawing.Color{R: 255, G: 165, B: 0, A: 255}, StrokeWidth: 2.0},
}

// PlotWriter renders each frame as frameNNNN.png: one line per component
// against the cell centres.
type PlotWriter struct {
	Dir    string
	Width  int
	Height int
	// Names labels the components in the legend; missing entries fall back
	// to q[m].
	Names []string
}

// NewPlotWriter creates dir if needed.
func NewPlotWriter(dir string) (*PlotWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating plot directory: %w", err)
	}
	return &PlotWriter{Dir: dir, Width: 800, Height: 400, Names: []string{"pressure", "velocity"}}, nil
}

func (p *PlotWriter) WriteFrame(f Frame) error {
	buf := bytes.NewBuffer(nil)
	if err := p.Render(f, buf); err != nil {
		return err
	}
	path := filepath.Join(p.Dir, fmt.Sprintf("frame%04d.png", f.Index))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Render draws f as PNG into buf.
func (p *PlotWriter) Render(f Frame, buf *bytes.Buffer) error {
	if want := f.Grid.InteriorSize(); len(f.Q) != want {
		return fmt.Errorf("frame %d: %d values, grid needs %d", f.Index, len(f.Q), want)
	}
	xs := f.Grid.Centers()
	series := make([]chart.Series, 0, f.Grid.Meqn)
	lo, hi := 0.0, 0.0
	for m := 0; m < f.Grid.Meqn; m++ {
		ys := f.Grid.Component(f.Q, m)
		lo = min(lo, floats.Min(ys))
		hi = max(hi, floats.Max(ys))
		series = append(series, chart.ContinuousSeries{
			Name:    p.name(m),
			XValues: xs,
			YValues: ys,
			Style:   componentStyles[m%len(componentStyles)],
		})
	}
	// A flat state has a zero-height range, which the chart refuses.
	if hi-lo < 1e-6 {
		lo, hi = lo-1, hi+1
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("frame %d  t = %.4f", f.Index, f.Time),
		Width:  p.Width,
		Height: p.Height,
		XAxis: chart.XAxis{
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: f.Grid.XLower, Max: f.Grid.XUpper},
		},
		YAxis: chart.YAxis{
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	if err := graph.Render(chart.PNG, buf); err != nil {
		return fmt.Errorf("rendering frame %d: %w", f.Index, err)
	}
	return nil
}

func (p *PlotWriter) name(m int) string {
	if m < len(p.Names) {
		return p.Names[m]
	}
	return fmt.Sprintf("q[%d]", m)
}
