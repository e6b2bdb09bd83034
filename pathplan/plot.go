package pathplan

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	_ "gonum.org/v1/plot/vg/vgimg" // register png
	_ "gonum.org/v1/plot/vg/vgsvg" // register svg
)

// heightGrid adapts a height map over a grid to plotter.GridXYZ.
type heightGrid struct {
	g *Grid
	h *mat.Dense
}

func (hg heightGrid) Dims() (c, r int) {
	r, c = hg.h.Dims()
	return c, r
}

func (hg heightGrid) Z(c, r int) float64 { return hg.h.At(r, c) }
func (hg heightGrid) X(c int) float64    { return hg.g.X.At(0, c) }
func (hg heightGrid) Y(r int) float64    { return hg.g.Y.At(r, 0) }

// PlotPath is a named path drawn over the surface.
type PlotPath struct {
	Name  string
	Path  []Index
	Color color.Color
}

// DefaultPathColors are used in order for paths without a color.
var DefaultPathColors = []color.Color{
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

// Plot draws surface as a heat map with paths on top and saves it to file. The image format
// follows the file extension.
func Plot(g *Grid, surface *mat.Dense, paths []PlotPath, title, file string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	hm := plotter.NewHeatMap(heightGrid{g: g, h: surface}, palette.Heat(32, 1))
	if hm.Max == hm.Min {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	for i, path := range paths {
		pts := make(plotter.XYs, len(path.Path))
		for k, idx := range path.Path {
			pts[k] = plotter.XY{X: g.X.At(idx.Row, idx.Col), Y: g.Y.At(idx.Row, idx.Col)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "plotting path %s", path.Name)
		}
		line.Color = path.Color
		if line.Color == nil {
			line.Color = DefaultPathColors[i%len(DefaultPathColors)]
		}
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(path.Name, line)
	}
	return errors.Wrapf(p.Save(8*vg.Inch, 8*vg.Inch, file), "saving plot %s", file)
}
