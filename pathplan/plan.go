package pathplan

import (
	"math/rand"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// Config describes a planning scenario with random obstacles.
type Config struct {
	XRange         Range                 `json:"x_range"`
	YRange         Range                 `json:"y_range"`
	Step           float64               `json:"step"`
	Obstacles      int                   `json:"obstacles"`
	RadiusRange    Range                 `json:"radius_range"`
	HeightRange    Range                 `json:"height_range"`
	Clearance      ClearanceConfig       `json:"clearance"`
	HeightCosts    map[Heuristic]float64 `json:"height_costs,omitempty"`
	AltitudeOffset float64               `json:"altitude_offset"`
	// Start and Goal default to two cells in from opposite corners.
	Start *Index `json:"start,omitempty"`
	Goal  *Index `json:"goal,omitempty"`
	Seed  int64  `json:"seed"`
	// Origin, when set, geolocates the waypoints of a plan.
	Origin *Origin `json:"origin,omitempty"`
}

// DefaultConfig is a 60x60 field with four obstacles.
func DefaultConfig() Config {
	return Config{
		XRange:      Range{0, 60},
		YRange:      Range{0, 60},
		Step:        1,
		Obstacles:   4,
		RadiusRange: Range{5, 18},
		HeightRange: Range{1, 50},
		Clearance: ClearanceConfig{
			Buffer:        1,
			MinAltitude:   10,
			MaxClimb:      4,
			MaxClimbRate2: 0.25,
			MaxIterations: 500,
		},
		HeightCosts:    map[Heuristic]float64{Euclidean: 0, LeastDiff: 0.01, Lowest: 0.1},
		AltitudeOffset: 2,
		Seed:           1,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Step <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "step")
	}
	if cfg.XRange.Max <= cfg.XRange.Min || cfg.YRange.Max <= cfg.YRange.Min {
		return utils.NewConfigValidationError(path, errors.New("x_range and y_range must not be empty"))
	}
	if cfg.Obstacles < 0 {
		return utils.NewConfigValidationError(path, errors.New("obstacles cannot be negative"))
	}
	if cfg.RadiusRange.Min < 0 || cfg.RadiusRange.Max < cfg.RadiusRange.Min {
		return utils.NewConfigValidationError(path, errors.New("invalid radius_range"))
	}
	if cfg.HeightRange.Min < 0 || cfg.HeightRange.Max < cfg.HeightRange.Min {
		return utils.NewConfigValidationError(path, errors.New("invalid height_range"))
	}
	if err := cfg.Clearance.Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if cfg.Origin != nil {
		if err := cfg.Origin.Validate(); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	for h := range cfg.HeightCosts {
		switch h {
		case Euclidean, LeastDiff, Lowest:
		default:
			return utils.NewConfigValidationError(path, errors.Errorf("unknown heuristic %q", h))
		}
	}
	return nil
}

// Result is a solved scenario.
type Result struct {
	Grid      *Grid
	Obstacles []Obstacle
	Heights   *mat.Dense
	Surface   *Surface
	Start     Index
	Goal      Index
	Paths     map[Heuristic][]Index
}

// Solve generates the obstacles of cfg, raises the clearance surface and searches it with every
// heuristic.
func Solve(cfg Config) (*Result, error) {
	if err := cfg.Validate("plan"); err != nil {
		return nil, err
	}
	g, err := NewGrid(cfg.XRange, cfg.YRange, cfg.Step)
	if err != nil {
		return nil, err
	}
	//nolint:gosec
	rng := rand.New(rand.NewSource(cfg.Seed))
	res := &Result{
		Grid:      g,
		Obstacles: GenerateObstacles(rng, cfg.Obstacles, cfg.XRange, cfg.YRange, cfg.RadiusRange, cfg.HeightRange),
		Paths:     map[Heuristic][]Index{},
	}
	res.Heights = PlaceObstacles(g, res.Obstacles)
	if res.Surface, err = ClearanceSurface(res.Heights, cfg.Clearance); err != nil {
		return nil, err
	}

	rows, cols := g.Dims()
	res.Start, res.Goal = Index{Row: 2, Col: 2}, Index{Row: rows - 2, Col: cols - 2}
	if cfg.Start != nil {
		res.Start = *cfg.Start
	}
	if cfg.Goal != nil {
		res.Goal = *cfg.Goal
	}
	for _, h := range Heuristics() {
		path, err := AStar(g, res.Surface.Heights, res.Start, res.Goal, h, cfg.HeightCosts[h])
		if err != nil {
			return nil, errors.Wrapf(err, "%s search", h)
		}
		res.Paths[h] = path
	}
	return res, nil
}
