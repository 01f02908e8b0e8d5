package sim

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var seriesColors = []color.Color{
	color.RGBA{R: 255, B: 128, A: 255},
	color.RGBA{G: 160, A: 255},
	color.RGBA{R: 169, G: 169, B: 169, A: 255},
	color.RGBA{B: 255, A: 255},
}

// NewSeriesPlot creates new line plot of named series sharing the x values.
// Series are drawn in the lexical order of their names.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * no x values or no series were supplied
// * either of the series has different length than x
// * gonum plot fails to be created
func NewSeriesPlot(title, ylabel string, x []float64, series map[string][]float64) (*plot.Plot, error) {
	if len(x) == 0 || len(series) == 0 {
		return nil, fmt.Errorf("invalid data supplied")
	}

	names := make([]string, 0, len(series))
	for name, ys := range series {
		if len(ys) != len(x) {
			return nil, fmt.Errorf("invalid length of series %q: %d != %d", name, len(ys), len(x))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "time"
	p.Y.Label.Text = ylabel

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	for i, name := range names {
		pts := makePoints(x, series[name])

		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %v", err)
		}
		c := seriesColors[i%len(seriesColors)]
		line.Color = c
		points.Color = c
		points.Shape = draw.CrossGlyph{}
		points.Radius = vg.Points(2)

		p.Add(line, points)
		p.Legend.Add(name, line, points)
	}

	return p, nil
}

// NewFieldPlot creates new heat map of field stored as ny x nx matrix of cells of size dx x dy.
// It returns error if field is nil or cell sizes are not positive.
func NewFieldPlot(title string, field *mat.Dense, dx, dy float64) (*plot.Plot, error) {
	if field == nil {
		return nil, fmt.Errorf("invalid data supplied")
	}

	if !(dx > 0) || !(dy > 0) {
		return nil, fmt.Errorf("invalid cell size: %f x %f", dx, dy)
	}

	g := &fieldGrid{field: field, dx: dx, dy: dy}
	hm := plotter.NewHeatMap(g, palette.Heat(16, 1))

	// heat map can't scale constant fields
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	p.Add(hm)

	return p, nil
}

// fieldGrid implements plotter.GridXYZ on cell centres.
type fieldGrid struct {
	field  *mat.Dense
	dx, dy float64
}

func (g *fieldGrid) Dims() (c, r int) {
	r, c = g.field.Dims()
	return c, r
}

func (g *fieldGrid) Z(c, r int) float64 {
	return g.field.At(r, c)
}

func (g *fieldGrid) X(c int) float64 {
	return (float64(c) + 0.5) * g.dx
}

func (g *fieldGrid) Y(r int) float64 {
	return (float64(r) + 0.5) * g.dy
}

func makePoints(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(x))
	for i := range x {
		// NaN values, e.g. RMSE without truth, are skipped
		if floats.HasNaN([]float64{x[i], y[i]}) {
			continue
		}
		pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
	}

	return pts
}
