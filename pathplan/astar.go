package pathplan

import (
	"container/heap"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoPath is returned when the goal cannot be reached.
var ErrNoPath = errors.New("no path")

// Heuristic selects the distance used for both the step cost and the estimate to the goal.
type Heuristic string

// The available heuristics.
const (
	// Euclidean is the 3-D distance between cells on the surface.
	Euclidean Heuristic = "euclidean"
	// LeastDiff is the 2-D distance plus the height cost times the height change.
	LeastDiff Heuristic = "least_diff"
	// Lowest is the 2-D distance plus the height cost times the destination height.
	Lowest Heuristic = "lowest"
)

// Heuristics lists every heuristic.
func Heuristics() []Heuristic {
	return []Heuristic{Euclidean, LeastDiff, Lowest}
}

type searchOptions struct {
	ceiling float64
}

// SearchOption customizes AStar.
type SearchOption func(*searchOptions)

// WithCeiling makes every cell whose surface height exceeds ceiling impassable.
func WithCeiling(ceiling float64) SearchOption {
	return func(o *searchOptions) {
		o.ceiling = ceiling
	}
}

// AStar returns the cheapest 4-connected path from start to goal over surface, both ends
// included. heightCost weighs the height term of LeastDiff and Lowest and is ignored by
// Euclidean.
func AStar(
	g *Grid, surface *mat.Dense, start, goal Index, heuristic Heuristic, heightCost float64, opts ...SearchOption,
) ([]Index, error) {
	o := searchOptions{ceiling: math.Inf(1)}
	for _, opt := range opts {
		opt(&o)
	}
	rows, cols := g.Dims()
	if sr, sc := surface.Dims(); sr != rows || sc != cols {
		return nil, errors.Errorf("surface is %dx%d but grid is %dx%d", sr, sc, rows, cols)
	}
	if !g.Contains(start) || !g.Contains(goal) {
		return nil, errors.Errorf("start %v or goal %v outside the %dx%d grid", start, goal, rows, cols)
	}
	switch heuristic {
	case Euclidean, LeastDiff, Lowest:
	default:
		return nil, errors.Errorf("unknown heuristic %q", heuristic)
	}
	passable := func(idx Index) bool {
		return surface.At(idx.Row, idx.Col) <= o.ceiling
	}
	if !passable(start) || !passable(goal) {
		return nil, ErrNoPath
	}

	cost := func(a, b Index) float64 {
		dx := g.X.At(b.Row, b.Col) - g.X.At(a.Row, a.Col)
		dy := g.Y.At(b.Row, b.Col) - g.Y.At(a.Row, a.Col)
		ha, hb := surface.At(a.Row, a.Col), surface.At(b.Row, b.Col)
		switch heuristic {
		case LeastDiff:
			return math.Hypot(dx, dy) + heightCost*math.Abs(hb-ha)
		case Lowest:
			return math.Hypot(dx, dy) + heightCost*math.Abs(hb)
		default:
			return math.Sqrt(dx*dx + dy*dy + (hb-ha)*(hb-ha))
		}
	}

	gScore := map[Index]float64{start: 0}
	cameFrom := map[Index]Index{}
	closed := map[Index]bool{}
	open := &openSet{}
	heap.Push(open, &node{idx: start, f: cost(start, goal)})
	for open.Len() > 0 {
		current := heap.Pop(open).(*node).idx
		if current == goal {
			return reconstruct(cameFrom, start, goal), nil
		}
		if closed[current] {
			continue
		}
		closed[current] = true
		for _, n := range neighbors(current) {
			if !g.Contains(n) || closed[n] || !passable(n) {
				continue
			}
			tentative := gScore[current] + cost(current, n)
			if old, ok := gScore[n]; ok && tentative >= old {
				continue
			}
			gScore[n] = tentative
			cameFrom[n] = current
			heap.Push(open, &node{idx: n, f: tentative + cost(n, goal), seq: open.next()})
		}
	}
	return nil, ErrNoPath
}

func neighbors(idx Index) [4]Index {
	return [4]Index{
		{idx.Row + 1, idx.Col},
		{idx.Row - 1, idx.Col},
		{idx.Row, idx.Col + 1},
		{idx.Row, idx.Col - 1},
	}
}

func reconstruct(cameFrom map[Index]Index, start, goal Index) []Index {
	path := []Index{goal}
	for current := goal; current != start; {
		current = cameFrom[current]
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type node struct {
	idx Index
	f   float64
	seq int
}

// openSet is a min heap on f, ties broken by insertion order.
type openSet struct {
	nodes []*node
	count int
}

func (s *openSet) next() int {
	s.count++
	return s.count
}

func (s *openSet) Len() int { return len(s.nodes) }

func (s *openSet) Less(i, j int) bool {
	if s.nodes[i].f != s.nodes[j].f {
		return s.nodes[i].f < s.nodes[j].f
	}
	return s.nodes[i].seq < s.nodes[j].seq
}

func (s *openSet) Swap(i, j int) { s.nodes[i], s.nodes[j] = s.nodes[j], s.nodes[i] }

func (s *openSet) Push(x interface{}) { s.nodes = append(s.nodes, x.(*node)) }

func (s *openSet) Pop() interface{} {
	n := s.nodes[len(s.nodes)-1]
	s.nodes = s.nodes[:len(s.nodes)-1]
	return n
}

// Waypoint is a point of a flight path.
type Waypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	// Lat and Lng are set by Geolocate.
	Lat float64 `json:"lat,omitempty"`
	Lng float64 `json:"lng,omitempty"`
}

// Waypoints converts path to coordinates flown altitudeOffset above surface.
func Waypoints(g *Grid, surface *mat.Dense, path []Index, altitudeOffset float64) []Waypoint {
	out := make([]Waypoint, len(path))
	for i, p := range path {
		out[i] = Waypoint{
			X: g.X.At(p.Row, p.Col),
			Y: g.Y.At(p.Row, p.Col),
			Z: surface.At(p.Row, p.Col) + altitudeOffset,
		}
	}
	return out
}
