package cli

import (
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/suas-odlc/odlc/train"
)

// TrainAction is the corresponding Action for 'train'.
func TrainAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tcfg := cfg.Train
	if c.IsSet(trainFlagDataset) {
		tcfg.DatasetDir = c.Path(trainFlagDataset)
	}
	if c.IsSet(trainFlagExport) {
		tcfg.ExportDir = c.Path(trainFlagExport)
	}
	if c.IsSet(trainFlagModel) {
		tcfg.ModelSpec = c.String(trainFlagModel)
	}
	if c.IsSet(trainFlagEpochs) {
		tcfg.Epochs = c.Int(trainFlagEpochs)
	}
	if c.IsSet(trainFlagBatchSize) {
		tcfg.BatchSize = c.Int(trainFlagBatchSize)
	}
	if c.IsSet(trainFlagRunner) {
		tcfg.Runner = c.String(trainFlagRunner)
	}
	if c.IsSet(trainFlagPython) {
		tcfg.Python = c.String(trainFlagPython)
	}
	if c.IsSet(trainFlagImage) {
		tcfg.Image = c.String(trainFlagImage)
	}
	if c.IsSet(trainFlagQuantization) {
		tcfg.Quantization = c.String(trainFlagQuantization)
	}

	if c.Bool(trainFlagDryRun) {
		script, err := train.BuildScript(tcfg)
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", script)
		return nil
	}

	// no spinner here: the training program streams its own output
	logger := newLogger(c, cfg)
	result, err := train.NewDriver(c.App.Writer, c.App.ErrWriter, logger.Sublogger("train")).Run(c.Context, tcfg)
	if err != nil {
		if errors.Is(err, train.ErrExternal) {
			return errors.Wrap(err, "the training program failed, see its output above")
		}
		return err
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Metric", "Value"})
	names := lo.Keys(result.Metrics)
	sort.Strings(names)
	for _, name := range names {
		t.AppendRow(table.Row{name, result.Metrics[name]})
	}
	printf(c.App.Writer, "%s", t.Render())
	for _, p := range result.ArtifactPaths {
		printf(c.App.Writer, "exported %s", p)
	}
	return nil
}
