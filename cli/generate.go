package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"github.com/suas-odlc/odlc/annotate"
	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/generator"
	"github.com/suas-odlc/odlc/logging"
	"github.com/suas-odlc/odlc/synth"
	"github.com/suas-odlc/odlc/target"
)

// GenerateAction is the corresponding Action for 'generate'.
func GenerateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	gcfg, scfg := cfg.Generate, cfg.Synth
	applySplitFlags(c, &gcfg)
	if c.IsSet(generateFlagCount) {
		gcfg.Count = c.Int(generateFlagCount)
	}
	if c.IsSet(generateFlagSeed) {
		scfg.Seed = gcfg.Seed
	}
	if c.IsSet(generateFlagBackgrounds) {
		scfg.Backgrounds = c.Path(generateFlagBackgrounds)
	}
	if c.IsSet(generateFlagSize) {
		if scfg.Width, scfg.Height, err = parseSize(c.String(generateFlagSize)); err != nil {
			return err
		}
	}
	if c.IsSet(generateFlagMaxTargets) {
		scfg.MaxTargets = c.Int(generateFlagMaxTargets)
		if scfg.MinTargets > scfg.MaxTargets {
			scfg.MinTargets = scfg.MaxTargets
		}
	}
	if c.IsSet(generateFlagFormat) {
		scfg.Format = c.String(generateFlagFormat)
	}

	logger := newLogger(c, cfg)
	gen, err := synth.NewGenerator(scfg, logger.Sublogger("synth"))
	if err != nil {
		return err
	}
	summary, err := runPipeline(c, gen, gcfg, logger)
	if err != nil {
		return err
	}
	printSummary(c.App.Writer, summary)
	return nil
}

// ImportAction is the corresponding Action for 'import'.
func ImportAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	gcfg, icfg := cfg.Generate, cfg.Import
	applySplitFlags(c, &gcfg)
	if c.IsSet(importFlagVOC) {
		icfg.VOC, icfg.JSONL = c.Path(importFlagVOC), ""
	}
	if c.IsSet(importFlagJSONL) {
		icfg.JSONL = c.Path(importFlagJSONL)
		if c.IsSet(importFlagVOC) {
			return errors.Errorf("only one of --%s and --%s may be given", importFlagVOC, importFlagJSONL)
		}
		icfg.VOC = ""
	}
	if c.IsSet(importFlagImages) {
		icfg.Images = c.Path(importFlagImages)
	}

	logger := newLogger(c, cfg)
	var src generator.Source
	switch {
	case icfg.VOC != "":
		if src, err = annotate.NewVOCSource(icfg.VOC, icfg.Images, logger.Sublogger("voc")); err != nil {
			return err
		}
	case icfg.JSONL != "":
		jsonl, err := annotate.NewJSONLSource(icfg.JSONL, icfg.Images, logger.Sublogger("jsonl"))
		if err != nil {
			return err
		}
		defer utils.UncheckedErrorFunc(jsonl.Close)
		src = jsonl
	default:
		return errors.Errorf("one of --%s or --%s is required", importFlagVOC, importFlagJSONL)
	}

	summary, err := runPipeline(c, src, gcfg, logger, generator.ReadAll())
	if err != nil {
		return err
	}
	if summary.Rejected > 0 {
		warningf(c.App.ErrWriter, "%d annotated images were rejected, see the log for reasons", summary.Rejected)
	}
	printSummary(c.App.Writer, summary)
	return nil
}

// applySplitFlags overrides cfg with the split, seed and output flags. Giving any split share
// replaces all three; the ones not given become zero.
func applySplitFlags(c *cli.Context, cfg *generator.Config) {
	if c.IsSet(generateFlagTrain) || c.IsSet(generateFlagValidation) || c.IsSet(generateFlagTest) {
		cfg.Splits = dataset.Ratios{
			Train:      c.Float64(generateFlagTrain),
			Validation: c.Float64(generateFlagValidation),
			Test:       c.Float64(generateFlagTest),
		}
	}
	if c.IsSet(generateFlagSeed) {
		cfg.Seed = c.Int64(generateFlagSeed)
	}
	if c.IsSet(generateFlagOut) {
		cfg.OutputDir = c.Path(generateFlagOut)
	}
	if c.IsSet(generateFlagShardSize) {
		cfg.ShardSize = c.Int(generateFlagShardSize)
	}
}

func runPipeline(
	c *cli.Context, src generator.Source, cfg generator.Config, logger logging.Logger, opts ...generator.Option,
) (*generator.Summary, error) {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm := newProgress(c, &Step{ID: "samples", Message: "Collecting samples"})
	defer pm.Stop()
	if err := pm.Start("samples"); err != nil {
		return nil, err
	}
	opts = append(opts, generator.WithProgress(func(accepted, rejected int) {
		pm.UpdateText(fmt.Sprintf("Collecting samples: %d accepted, %d rejected", accepted, rejected))
	}))
	summary, err := generator.Run(ctx, src, cfg, logger.Sublogger("generate"), opts...)
	if err != nil {
		utils.UncheckedError(pm.Fail("samples", err))
		return nil, err
	}
	utils.UncheckedError(pm.CompleteWithMessage("samples",
		fmt.Sprintf("Wrote %d samples to %s", summary.Accepted, cfg.OutputDir)))
	return summary, nil
}

func printSummary(w io.Writer, summary *generator.Summary) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Split", "Records", "Files", "Size"})
	var total int64
	for _, split := range dataset.Splits() {
		info, ok := summary.Splits[split]
		if !ok {
			continue
		}
		total += info.Bytes
		t.AppendRow(table.Row{split, info.Size, len(info.Files), units.HumanSize(float64(info.Bytes))})
	}
	t.AppendFooter(table.Row{"total", summary.Accepted, len(summary.Files()), units.HumanSize(float64(total))})
	printf(w, "%s", t.Render())
	printf(w, "%s", classTable(summary.PerClass))
	printf(w, "run %s: %d accepted, %d rejected, %d regions in %s",
		summary.RunID, summary.Accepted, summary.Rejected, summary.Regions, summary.Duration)
}

func classTable(perClass map[target.Shape]int) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Class", "Regions"})
	for _, s := range target.Shapes() {
		if n := perClass[s]; n > 0 {
			t.AppendRow(table.Row{s.ID(), s, n})
		}
	}
	return t.Render()
}
