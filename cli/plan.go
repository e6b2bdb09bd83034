package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"github.com/suas-odlc/odlc/pathplan"
)

// PlanAction is the corresponding Action for 'plan'.
func PlanAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	pcfg := cfg.Plan
	if c.IsSet(planFlagObstacles) {
		pcfg.Obstacles = c.Int(planFlagObstacles)
	}
	if c.IsSet(planFlagSeed) {
		pcfg.Seed = c.Int64(planFlagSeed)
	}
	logger := newLogger(c, cfg).Sublogger("plan")

	pm := newProgress(c, &Step{ID: "plan", Message: "Planning paths"})
	defer pm.Stop()
	utils.UncheckedError(pm.Start("plan"))
	res, err := pathplan.Solve(pcfg)
	if err != nil {
		utils.UncheckedError(pm.Fail("plan", err))
		return err
	}
	utils.UncheckedError(pm.Complete("plan"))
	if !res.Surface.Converged {
		logger.Warnw("clearance surface exceeds the second difference bound",
			"iterations", res.Surface.Iterations,
			"max", pathplan.MaxSecondDifference(res.Surface.Heights),
			"bound", pcfg.Clearance.MaxClimbRate2)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Heuristic", "Cells", "Length", "Max altitude", "Climb"})
	waypoints := map[pathplan.Heuristic][]pathplan.Waypoint{}
	var plots []pathplan.PlotPath
	for _, h := range pathplan.Heuristics() {
		wps := pathplan.Waypoints(res.Grid, res.Surface.Heights, res.Paths[h], pcfg.AltitudeOffset)
		if pcfg.Origin != nil {
			wps = pathplan.Geolocate(*pcfg.Origin, wps)
		}
		waypoints[h] = wps
		plots = append(plots, pathplan.PlotPath{Name: string(h), Path: res.Paths[h]})
		length, top, climb := pathMetrics(wps)
		t.AppendRow(table.Row{h, len(wps), fmt.Sprintf("%.1f", length), fmt.Sprintf("%.1f", top), fmt.Sprintf("%.1f", climb)})
	}
	printf(c.App.Writer, "%d obstacles, start %v, goal %v", len(res.Obstacles), res.Start, res.Goal)
	printf(c.App.Writer, "%s", t.Render())

	if file := c.Path(planFlagPlot); file != "" {
		if err := pathplan.Plot(res.Grid, res.Surface.Heights, plots, "clearance surface", file); err != nil {
			return err
		}
		printf(c.App.Writer, "wrote plot to %s", file)
	}
	if file := c.Path(planFlagWaypoints); file != "" {
		out, err := json.MarshalIndent(waypoints, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(file, append(out, '\n'), 0o640); err != nil {
			return errors.Wrapf(err, "writing %s", file)
		}
		printf(c.App.Writer, "wrote waypoints to %s", file)
	}
	return nil
}

// pathMetrics returns the 3-D length, the highest altitude and the total climb of a path.
func pathMetrics(wps []pathplan.Waypoint) (length, top, climb float64) {
	for i, wp := range wps {
		top = math.Max(top, wp.Z)
		if i == 0 {
			continue
		}
		prev := wps[i-1]
		dx, dy, dz := wp.X-prev.X, wp.Y-prev.Y, wp.Z-prev.Z
		length += math.Sqrt(dx*dx + dy*dy + dz*dz)
		climb += math.Max(0, dz)
	}
	return length, top, climb
}
