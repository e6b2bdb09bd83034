// Package pathplan plans low-altitude flight paths over terrain with cylindrical obstacles: a
// clearance surface is raised over the obstacles and A* searches it for a path.
package pathplan

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Range is a [Min, Max) interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Grid is a regular sampling of the plane. Row i, column j is the point (X[i,j], Y[i,j]); x
// varies along columns and y along rows.
type Grid struct {
	X, Y *mat.Dense
}

// NewGrid samples xRange and yRange every step, excluding the upper bounds.
func NewGrid(xRange, yRange Range, step float64) (*Grid, error) {
	if step <= 0 {
		return nil, errors.Errorf("grid step must be positive, got %v", step)
	}
	cols := int(math.Ceil((xRange.Max - xRange.Min) / step))
	rows := int(math.Ceil((yRange.Max - yRange.Min) / step))
	if cols <= 0 || rows <= 0 {
		return nil, errors.Errorf("empty grid for x %v and y %v", xRange, yRange)
	}
	x := mat.NewDense(rows, cols, nil)
	y := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			x.Set(i, j, xRange.Min+float64(j)*step)
			y.Set(i, j, yRange.Min+float64(i)*step)
		}
	}
	return &Grid{X: x, Y: y}, nil
}

// Dims returns the number of rows and columns.
func (g *Grid) Dims() (rows, cols int) {
	return g.X.Dims()
}

// Index addresses a grid cell.
type Index struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Contains reports whether idx lies in the grid.
func (g *Grid) Contains(idx Index) bool {
	rows, cols := g.Dims()
	return idx.Row >= 0 && idx.Row < rows && idx.Col >= 0 && idx.Col < cols
}

// Obstacle is a vertical cylinder.
type Obstacle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`
}

func uniform(rng *rand.Rand, r Range) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// GenerateObstacles draws n obstacles with centers, radii and heights uniform in their ranges.
func GenerateObstacles(rng *rand.Rand, n int, xRange, yRange, radiusRange, heightRange Range) []Obstacle {
	out := make([]Obstacle, n)
	for i := range out {
		out[i] = Obstacle{
			X:      uniform(rng, xRange),
			Y:      uniform(rng, yRange),
			Radius: uniform(rng, radiusRange),
			Height: uniform(rng, heightRange),
		}
	}
	return out
}

// PlaceObstacles returns the height map of obstacles over g: a cell strictly inside an obstacle
// takes its height, later obstacles overwriting earlier ones, and free cells are 0.
func PlaceObstacles(g *Grid, obstacles []Obstacle) *mat.Dense {
	rows, cols := g.Dims()
	h := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			x, y := g.X.At(i, j), g.Y.At(i, j)
			for _, o := range obstacles {
				dx, dy := x-o.X, y-o.Y
				if dx*dx+dy*dy < o.Radius*o.Radius {
					h.Set(i, j, o.Height)
				}
			}
		}
	}
	return h
}
