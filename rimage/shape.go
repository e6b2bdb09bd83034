package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/suas-odlc/odlc/target"
)

const arcSegments = 48

// Outline returns the vertices of shape, centered on the origin and scaled so the larger side of
// its bounding box is size, rotated by angle radians.
func Outline(shape target.Shape, size, angle float64) ([]r2.Point, error) {
	unit, err := unitOutline(shape)
	if err != nil {
		return nil, err
	}
	bounds := r2.RectFromPoints(unit...)
	center := bounds.Center()
	extent := bounds.Size()
	scale := size / math.Max(extent.X, extent.Y)
	sin, cos := math.Sincos(angle)

	out := make([]r2.Point, len(unit))
	for i, p := range unit {
		p = p.Sub(center).Mul(scale)
		out[i] = r2.Point{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos}
	}
	return out, nil
}

func unitOutline(shape target.Shape) ([]r2.Point, error) {
	switch shape {
	case target.Circle:
		return arc(0, 2*math.Pi, arcSegments), nil
	case target.Semicircle:
		return arc(math.Pi, 2*math.Pi, arcSegments/2), nil
	case target.QuarterCircle:
		return append([]r2.Point{{}}, arc(-math.Pi/2, 0, arcSegments/4)...), nil
	case target.Triangle:
		return regular(3, 1), nil
	case target.Square:
		return []r2.Point{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}, nil
	case target.Rectangle:
		return []r2.Point{{X: -1, Y: -0.6}, {X: 1, Y: -0.6}, {X: 1, Y: 0.6}, {X: -1, Y: 0.6}}, nil
	case target.Trapezoid:
		return []r2.Point{{X: -0.55, Y: -0.6}, {X: 0.55, Y: -0.6}, {X: 1, Y: 0.6}, {X: -1, Y: 0.6}}, nil
	case target.Pentagon:
		return regular(5, 1), nil
	case target.Hexagon:
		return regular(6, 1), nil
	case target.Heptagon:
		return regular(7, 1), nil
	case target.Octagon:
		return regular(8, 1), nil
	case target.Star:
		outer, inner := regular(5, 1), regular(5, 0.4)
		pts := make([]r2.Point, 0, 10)
		step := math.Pi / 5
		for i := range outer {
			sin, cos := math.Sincos(step)
			in := inner[i]
			pts = append(pts, outer[i], r2.Point{X: in.X*cos - in.Y*sin, Y: in.X*sin + in.Y*cos})
		}
		return pts, nil
	case target.Cross:
		const w = 1.0 / 3
		return []r2.Point{
			{X: -w, Y: -1}, {X: w, Y: -1}, {X: w, Y: -w}, {X: 1, Y: -w},
			{X: 1, Y: w}, {X: w, Y: w}, {X: w, Y: 1}, {X: -w, Y: 1},
			{X: -w, Y: w}, {X: -1, Y: w}, {X: -1, Y: -w}, {X: -w, Y: -w},
		}, nil
	default:
		return nil, errors.Errorf("no outline for shape %q", shape)
	}
}

// arc returns n+1 points on the unit circle from angle a0 to a1. Image y grows downwards so
// negative angles point up.
func arc(a0, a1 float64, n int) []r2.Point {
	full := math.Abs(a1-a0-2*math.Pi) < 1e-9
	count := n + 1
	if full {
		count = n
	}
	pts := make([]r2.Point, 0, count)
	for i := 0; i < count; i++ {
		a := a0 + (a1-a0)*float64(i)/float64(n)
		pts = append(pts, r2.Point{X: math.Cos(a), Y: math.Sin(a)})
	}
	return pts
}

// regular returns the vertices of a regular polygon with n sides and circumradius r, with a
// vertex pointing up.
func regular(n int, r float64) []r2.Point {
	pts := make([]r2.Point, n)
	for i := range pts {
		a := -math.Pi/2 + 2*math.Pi*float64(i)/float64(n)
		pts[i] = r2.Point{X: r * math.Cos(a), Y: r * math.Sin(a)}
	}
	return pts
}

// TargetStyle describes how a single target is painted.
type TargetStyle struct {
	Spec              target.Spec
	Size              float64
	Angle             float64
	ShapeColor        color.Color
	AlphanumericColor color.Color
}

// RenderTarget paints a target on a transparent square canvas large enough to hold it at any
// rotation. The shape is centered on the canvas.
func RenderTarget(style TargetStyle) (*image.RGBA, error) {
	if style.Size < 4 {
		return nil, errors.Errorf("target size %v too small", style.Size)
	}
	outline, err := Outline(style.Spec.Shape, style.Size, style.Angle)
	if err != nil {
		return nil, err
	}
	side := int(math.Ceil(style.Size*math.Sqrt2)) + 4
	c := float64(side) / 2

	dc := gg.NewContext(side, side)
	dc.SetColor(style.ShapeColor)
	for i, p := range outline {
		if i == 0 {
			dc.MoveTo(c+p.X, c+p.Y)
		} else {
			dc.LineTo(c+p.X, c+p.Y)
		}
	}
	dc.ClosePath()
	dc.Fill()

	if style.Spec.Alphanumeric != "" {
		DrawStringCentered(dc, string(style.Spec.Alphanumeric), c, c, style.Angle, style.AlphanumericColor, style.Size*0.45)
	}
	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, errors.Errorf("unexpected canvas type %T", dc.Image())
	}
	return img, nil
}

// AlphaBounds returns the smallest rectangle containing every pixel of img that is not fully
// transparent. It is empty when img is fully transparent.
func AlphaBounds(img image.Image) image.Rectangle {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X, b.Min.Y
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a == 0 {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x+1)
			maxY = max(maxY, y+1)
		}
	}
	if minX >= maxX || minY >= maxY {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX, maxY)
}
