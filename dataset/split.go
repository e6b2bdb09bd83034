package dataset

import (
	"encoding/json"
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// Split names a dataset partition.
type Split string

// The splits understood by the model-maker data loader.
const (
	SplitTrain      Split = "train"
	SplitValidation Split = "validation"
	SplitTest       Split = "test"
)

// Splits returns the splits in the order they are written.
func Splits() []Split {
	return []Split{SplitTrain, SplitValidation, SplitTest}
}

// Ratios are the relative sizes of the splits. They need not sum to one; each split receives
// its share of the total.
type Ratios struct {
	Train      float64 `json:"train"`
	Validation float64 `json:"validation"`
	Test       float64 `json:"test"`
}

// UnmarshalJSON replaces all three ratios; a split missing from the object gets 0 instead of
// keeping the value r held before.
func (r *Ratios) UnmarshalJSON(data []byte) error {
	type plain Ratios
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Ratios(p)
	return nil
}

// DefaultRatios is an 80/10/10 partition.
var DefaultRatios = Ratios{Train: 0.8, Validation: 0.1, Test: 0.1}

// Get returns the ratio of split.
func (r Ratios) Get(split Split) float64 {
	switch split {
	case SplitTrain:
		return r.Train
	case SplitValidation:
		return r.Validation
	case SplitTest:
		return r.Test
	default:
		return 0
	}
}

// Validate ensures no ratio is negative and the train split is not empty.
func (r Ratios) Validate() error {
	for _, s := range Splits() {
		v := r.Get(s)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("%s ratio must be a non-negative number, got %v", s, v)
		}
	}
	if r.Train <= 0 {
		return errors.New("train ratio must be positive")
	}
	return nil
}

// Counts divides n items among the splits using largest remainder rounding: every split first
// gets the floor of its exact share and the leftover items go to the largest fractional parts,
// ties broken in split order. The counts always sum to n.
func (r Ratios) Counts(n int) (map[Split]int, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Errorf("cannot split a negative count %d", n)
	}
	splits := Splits()
	total := 0.0
	for _, s := range splits {
		total += r.Get(s)
	}

	counts := make(map[Split]int, len(splits))
	remainders := make([]float64, len(splits))
	assigned := 0
	for i, s := range splits {
		exact := float64(n) * r.Get(s) / total
		whole := math.Floor(exact)
		counts[s] = int(whole)
		remainders[i] = exact - whole
		assigned += int(whole)
	}

	order := []int{0, 1, 2}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := 0; assigned < n; i++ {
		s := splits[order[i%len(order)]]
		counts[s]++
		assigned++
	}
	return counts, nil
}

// Partition shuffles samples with seed and cuts them into splits sized by Counts. The input
// slice is not modified.
func Partition(samples []*Sample, ratios Ratios, seed int64) (map[Split][]*Sample, error) {
	counts, err := ratios.Counts(len(samples))
	if err != nil {
		return nil, err
	}
	shuffled := make([]*Sample, len(samples))
	copy(shuffled, samples)
	//nolint:gosec
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	out := make(map[Split][]*Sample, len(counts))
	start := 0
	for _, s := range Splits() {
		end := start + counts[s]
		out[s] = shuffled[start:end]
		start = end
	}
	return out, nil
}
