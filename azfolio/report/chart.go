package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

type Style string

const (
	StyleLine      Style = "line"
	StyleHistogram Style = "histogram"
)

// DefaultBins is the number of bins of histogram series.
const DefaultBins = 15

type Series struct {
	Name   string
	Color  color.Color // default: plotutil palette
	Style  Style       // default: line
	Dashed bool
	Values []float64
	// Warmup is the number of leading values that are not drawn.
	Warmup int
}

type Chart struct {
	Title  string
	XLabel string
	YLabel string
	// Time holds the x coordinate of line series, the value index is used when empty.
	Time   []time.Time
	Series []Series
	Bins   int
}

// Plot renders the chart series into a gonum plot.
func (c Chart) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = c.XLabel
	p.Y.Label.Text = c.YLabel
	p.Add(plotter.NewGrid())

	if len(c.Time) > 0 {
		p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	}

	for i, series := range c.Series {
		seriesColor := series.Color
		if seriesColor == nil {
			seriesColor = plotutil.Color(i)
		}

		switch series.Style {
		case StyleHistogram:
			hist, err := c.histogram(series.Values)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", series.Name, err)
			}
			hist.FillColor = seriesColor
			p.Add(hist)
		default:
			if len(series.Values) <= series.Warmup {
				continue
			}
			line, err := plotter.NewLine(c.points(series))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", series.Name, err)
			}
			line.Color = seriesColor
			if series.Dashed {
				line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			}
			p.Add(line)
			if series.Name != "" {
				p.Legend.Add(series.Name, line)
			}
		}
	}
	p.Legend.Top = true
	return p, nil
}

func (c Chart) points(series Series) plotter.XYs {
	xys := make(plotter.XYs, 0, len(series.Values)-series.Warmup)
	for i := series.Warmup; i < len(series.Values); i++ {
		x := float64(i)
		if i < len(c.Time) {
			x = float64(c.Time[i].Unix())
		}
		xys = append(xys, plotter.XY{X: x, Y: series.Values[i]})
	}
	return xys
}

func (c Chart) histogram(values []float64) (*plotter.Histogram, error) {
	bins := c.Bins
	if bins <= 0 {
		bins = DefaultBins
	}

	// a single distinct value has no range to split
	if len(values) == 0 || lo.Min(values) == lo.Max(values) {
		hist := &plotter.Histogram{LineStyle: plotter.DefaultLineStyle, Width: 1}
		if len(values) > 0 {
			v := values[0]
			hist.Bins = []plotter.HistogramBin{{Min: v - 0.5, Max: v + 0.5, Weight: float64(len(values))}}
		}
		return hist, nil
	}
	return plotter.NewHist(plotter.Values(values), bins)
}

// SaveGrid draws charts row by row on a rows x cols grid and writes a PNG to path.
func SaveGrid(path string, charts []Chart, rows, cols int, width, height vg.Length) error {
	if len(charts) > rows*cols {
		return fmt.Errorf("%d charts do not fit a %dx%d grid", len(charts), rows, cols)
	}

	plots := make([][]*plot.Plot, rows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, cols)
	}
	for i, chart := range charts {
		p, err := chart.Plot()
		if err != nil {
			return err
		}
		plots[i/cols][i%cols] = p
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      rows,
		Cols:      cols,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}

	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for c := range plots[r] {
			if plots[r][c] != nil {
				plots[r][c].Draw(canvases[r][c])
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(file); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
