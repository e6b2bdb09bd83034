package pathplan

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ClearanceConfig bounds the flight surface.
type ClearanceConfig struct {
	// Buffer is the minimum distance kept above every obstacle.
	Buffer float64 `json:"buffer"`
	// MinAltitude is the floor of the surface.
	MinAltitude float64 `json:"min_altitude"`
	// MaxClimb bounds the height difference between neighboring cells.
	MaxClimb float64 `json:"max_climb"`
	// MaxClimbRate2 bounds the second difference along rows and columns. It is met on a best
	// effort basis within MaxIterations sweeps.
	MaxClimbRate2 float64 `json:"max_climb_rate2"`
	MaxIterations int     `json:"max_iterations"`
}

// Validate checks the bounds are usable.
func (c ClearanceConfig) Validate() error {
	if c.Buffer < 0 {
		return errors.New("buffer cannot be negative")
	}
	if c.MaxClimb <= 0 {
		return errors.New("max climb must be positive")
	}
	if c.MaxClimbRate2 < 0 {
		return errors.New("max climb rate cannot be negative")
	}
	if c.MaxIterations < 0 {
		return errors.New("max iterations cannot be negative")
	}
	return nil
}

// Surface is a flight surface over a grid.
type Surface struct {
	Heights *mat.Dense
	// Iterations is the number of second difference sweeps run.
	Iterations int
	// Converged reports whether the second difference bound holds everywhere.
	Converged bool
}

// ClearanceSurface returns the lowest surface that stays Buffer above h and at or above
// MinAltitude while no two neighbors differ by more than MaxClimb. Those constraints hold
// exactly. Cells are then only ever raised, never beyond the highest required height, to
// bring the second difference within MaxClimbRate2.
func ClearanceSurface(h *mat.Dense, cfg ClearanceConfig) (*Surface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rows, cols := h.Dims()
	s := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			s.Set(i, j, math.Max(h.At(i, j)+cfg.Buffer, cfg.MinAltitude))
		}
	}
	limitClimb(s, cfg.MaxClimb)

	out := &Surface{Heights: s}
	for out.Iterations < cfg.MaxIterations {
		if !smoothSweep(s, cfg.MaxClimbRate2) {
			out.Converged = true
			break
		}
		out.Iterations++
		limitClimb(s, cfg.MaxClimb)
	}
	if !out.Converged {
		out.Converged = MaxSecondDifference(s) <= cfg.MaxClimbRate2+1e-9
	}
	return out, nil
}

// limitClimb raises s to the smallest surface above it whose 4-neighbors differ by at most
// climb. Two chamfer passes are exact for the city block metric.
func limitClimb(s *mat.Dense, climb float64) {
	rows, cols := s.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := s.At(i, j)
			if i > 0 {
				v = math.Max(v, s.At(i-1, j)-climb)
			}
			if j > 0 {
				v = math.Max(v, s.At(i, j-1)-climb)
			}
			s.Set(i, j, v)
		}
	}
	for i := rows - 1; i >= 0; i-- {
		for j := cols - 1; j >= 0; j-- {
			v := s.At(i, j)
			if i < rows-1 {
				v = math.Max(v, s.At(i+1, j)-climb)
			}
			if j < cols-1 {
				v = math.Max(v, s.At(i, j+1)-climb)
			}
			s.Set(i, j, v)
		}
	}
}

// smoothSweep raises cells violating the second difference bound and reports whether any cell
// changed. A valley is filled up to the bound; the neighbors of a peak are lifted toward it.
func smoothSweep(s *mat.Dense, bound float64) bool {
	const eps = 1e-9
	rows, cols := s.Dims()
	changed := false
	raise := func(i, j int, v float64) {
		if v > s.At(i, j)+eps {
			s.Set(i, j, v)
			changed = true
		}
	}
	fix := func(ai, aj, bi, bj, ci, cj int) {
		a, b, c := s.At(ai, aj), s.At(bi, bj), s.At(ci, cj)
		d2 := a - 2*b + c
		switch {
		case d2 > bound+eps:
			raise(bi, bj, (a+c-bound)/2)
		case d2 < -bound-eps:
			raise(ai, aj, b-bound/2)
			raise(ci, cj, b-bound/2)
		}
	}
	for i := 0; i < rows; i++ {
		for j := 1; j < cols-1; j++ {
			fix(i, j-1, i, j, i, j+1)
		}
	}
	for j := 0; j < cols; j++ {
		for i := 1; i < rows-1; i++ {
			fix(i-1, j, i, j, i+1, j)
		}
	}
	return changed
}

// MaxSecondDifference returns the largest absolute second difference of s along rows and
// columns.
func MaxSecondDifference(s *mat.Dense) float64 {
	rows, cols := s.Dims()
	worst := 0.0
	for i := 0; i < rows; i++ {
		for j := 1; j < cols-1; j++ {
			worst = math.Max(worst, math.Abs(s.At(i, j-1)-2*s.At(i, j)+s.At(i, j+1)))
		}
	}
	for j := 0; j < cols; j++ {
		for i := 1; i < rows-1; i++ {
			worst = math.Max(worst, math.Abs(s.At(i-1, j)-2*s.At(i, j)+s.At(i+1, j)))
		}
	}
	return worst
}
