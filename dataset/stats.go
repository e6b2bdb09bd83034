package dataset

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"

	"github.com/suas-odlc/odlc/target"
)

// Stats accumulates counts and box sizes over samples.
type Stats struct {
	Samples  int                  `json:"samples"`
	Regions  int                  `json:"regions"`
	Bytes    int64                `json:"image_bytes"`
	PerClass map[target.Shape]int `json:"per_class"`

	boxSizes []float64
}

// NewStats returns empty statistics.
func NewStats() *Stats {
	return &Stats{PerClass: map[target.Shape]int{}}
}

// Add records s.
func (st *Stats) Add(s *Sample) {
	st.Samples++
	st.Regions += len(s.Regions)
	st.Bytes += int64(len(s.Image))
	for label, n := range lo.CountValuesBy(s.Regions, func(r Region) target.Shape { return r.Label }) {
		st.PerClass[label] += n
	}
	st.boxSizes = append(st.boxSizes, lo.Map(s.Regions, func(r Region, _ int) float64 {
		return math.Sqrt(float64(r.Box.Dx() * r.Box.Dy()))
	})...)
}

// BoxSizes returns the size (square root of the pixel area) of every box seen so far.
func (st *Stats) BoxSizes() []float64 {
	out := make([]float64, len(st.boxSizes))
	copy(out, st.boxSizes)
	return out
}

// Classes returns the labels seen so far in taxonomy order.
func (st *Stats) Classes() []target.Shape {
	classes := lo.Keys(st.PerClass)
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID() < classes[j].ID() })
	return classes
}

// Summary describes a distribution of box sizes in pixels.
type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	P90    float64 `json:"p90"`
}

// BoxSummary summarizes the box sizes. It is the zero Summary when no box was seen.
func (st *Stats) BoxSummary() (Summary, error) {
	if len(st.boxSizes) == 0 {
		return Summary{}, nil
	}
	data := stats.Float64Data(st.boxSizes)
	var (
		sum Summary
		err error
	)
	if sum.Min, err = data.Min(); err != nil {
		return Summary{}, err
	}
	if sum.Max, err = data.Max(); err != nil {
		return Summary{}, err
	}
	if sum.Mean, err = data.Mean(); err != nil {
		return Summary{}, err
	}
	if sum.Median, err = data.Median(); err != nil {
		return Summary{}, err
	}
	if sum.StdDev, err = data.StandardDeviation(); err != nil {
		return Summary{}, err
	}
	if sum.P90, err = data.Percentile(90); err != nil {
		return Summary{}, err
	}
	return sum, nil
}
