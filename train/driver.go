package train

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/logging"
)

// ErrExternal is wrapped by every failure of the external training program.
var ErrExternal = errors.New("external training failed")

// Result is what a successful run left in the export directory.
type Result struct {
	ArtifactPaths []string           `json:"artifact_paths"`
	Metrics       map[string]float64 `json:"metrics"`
}

// Driver runs training programs, streaming their output.
type Driver struct {
	stdout io.Writer
	stderr io.Writer
	logger logging.Logger
}

// NewDriver returns a driver writing the program output to stdout and stderr.
func NewDriver(stdout, stderr io.Writer, logger logging.Logger) *Driver {
	return &Driver{stdout: stdout, stderr: stderr, logger: logger}
}

// Run checks the dataset, renders the training program and runs it with the configured runner.
// SIGINT and SIGTERM cancel the program. Failures of the program are returned wrapping
// ErrExternal and are not interpreted further.
func (d *Driver) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate("train"); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var err error
	if cfg.DatasetDir, err = filepath.Abs(cfg.DatasetDir); err != nil {
		return nil, err
	}
	if cfg.ExportDir, err = filepath.Abs(cfg.ExportDir); err != nil {
		return nil, err
	}
	if err := d.checkDataset(cfg.DatasetDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ExportDir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "creating %s", cfg.ExportDir)
	}

	script, err := BuildScript(cfg)
	if err != nil {
		return nil, err
	}
	scriptPath, err := writeScript(script)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(func() error { return os.Remove(scriptPath) })

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := Command(ctx, cfg, scriptPath)
	cmd.Stdout = d.stdout
	cmd.Stderr = d.stderr
	d.logger.Infow("starting training", "runner", cfg.Runner, "model", cfg.ModelSpec, "epochs", cfg.Epochs)
	d.logger.Debugw("training command", "args", cmd.Args)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "training interrupted")
		}
		return nil, errors.Wrapf(ErrExternal, "%s runner: %v", cfg.Runner, err)
	}
	return readResult(cfg.ExportDir)
}

// checkDataset requires a complete train split. The other splits are optional but must be
// complete when present.
func (d *Driver) checkDataset(dir string) error {
	for _, split := range dataset.Splits() {
		meta, err := dataset.CheckPartition(dir, split)
		if err != nil {
			if split == dataset.SplitTrain {
				return errors.Wrap(err, "dataset not ready for training")
			}
			if _, statErr := os.Stat(filepath.Join(dir, dataset.MetaDataName(split))); statErr == nil {
				return errors.Wrapf(err, "dataset %s split is incomplete", split)
			}
			d.logger.Infow("split not present", "split", split)
			continue
		}
		d.logger.Infow("found split", "split", split, "size", meta.Size)
	}
	return nil
}

func writeScript(script string) (path string, err error) {
	f, err := os.CreateTemp("", "odlc-train-*.py")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temporary script file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
		if err != nil {
			utils.UncheckedError(os.Remove(f.Name()))
			path = ""
		}
	}()
	if _, err := f.WriteString(script); err != nil {
		return "", errors.Wrap(err, "failed to write to temporary script file")
	}
	return f.Name(), nil
}

// Command returns the process that runs the script at scriptPath for cfg.
func Command(ctx context.Context, cfg Config, scriptPath string) *exec.Cmd {
	cfg = cfg.withDefaults()
	if cfg.Runner == RunnerDocker {
		//nolint:gosec
		return exec.CommandContext(ctx, "docker", dockerArgs(cfg, scriptPath)...)
	}
	//nolint:gosec
	return exec.CommandContext(ctx, cfg.Python, scriptPath)
}

func dockerArgs(cfg Config, scriptPath string) []string {
	return []string{
		"run",
		"-i", // Interactive mode to ensure signals are properly handled
		"--rm",
		"-v", fmt.Sprintf("%s:%s:ro", cfg.DatasetDir, containerDataset),
		"-v", fmt.Sprintf("%s:%s", cfg.ExportDir, containerExport),
		"-v", fmt.Sprintf("%s:%s:ro", scriptPath, containerScript),
		cfg.Image,
		"python3", containerScript,
	}
}

func readResult(exportDir string) (*Result, error) {
	//nolint:gosec
	data, err := os.ReadFile(filepath.Join(exportDir, MetricsFile))
	if err != nil {
		return nil, errors.Wrapf(ErrExternal, "training finished without metrics: %v", err)
	}
	res := &Result{}
	if err := json.Unmarshal(data, &res.Metrics); err != nil {
		return nil, errors.Wrapf(ErrExternal, "parsing %s: %v", MetricsFile, err)
	}
	entries, err := os.ReadDir(exportDir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", exportDir)
	}
	for _, e := range entries {
		if e.Name() == MetricsFile {
			continue
		}
		res.ArtifactPaths = append(res.ArtifactPaths, filepath.Join(exportDir, e.Name()))
	}
	sort.Strings(res.ArtifactPaths)
	return res, nil
}
