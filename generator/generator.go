// Package generator runs the dataset pipeline: it pulls labeled samples from a source, rejects
// malformed ones, partitions the rest into splits and writes the record files.
package generator

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/logging"
	"github.com/suas-odlc/odlc/target"
)

// ManifestFile is the summary written next to the record files.
const ManifestFile = "manifest.json"

// Source yields samples until it returns io.EOF. An error wrapping dataset.ErrMalformed rejects
// a single sample; any other error ends the run.
type Source interface {
	Next(ctx context.Context) (*dataset.Sample, error)
}

// Config describes a run.
type Config struct {
	Count     int            `json:"count"`
	Splits    dataset.Ratios `json:"splits"`
	Seed      int64          `json:"seed"`
	OutputDir string         `json:"output_dir"`
	ShardSize int            `json:"shard_size,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Count <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "count")
	}
	if cfg.OutputDir == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "output_dir")
	}
	if cfg.ShardSize < 0 {
		return utils.NewConfigValidationError(path, errors.New("shard_size cannot be negative"))
	}
	if err := cfg.Splits.Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// Summary describes a finished run. It is also written as the manifest.
type Summary struct {
	RunID     string                                  `json:"run_id"`
	Seed      int64                                   `json:"seed"`
	Requested int                                     `json:"requested"`
	Accepted  int                                     `json:"accepted"`
	Rejected  int                                     `json:"rejected"`
	Splits    map[dataset.Split]dataset.PartitionInfo `json:"splits"`
	PerClass  map[target.Shape]int                    `json:"per_class"`
	Regions   int                                     `json:"regions"`
	BoxSizes  dataset.Summary                         `json:"box_sizes"`
	Started   time.Time                               `json:"started"`
	Duration  time.Duration                           `json:"duration_ns"`
}

// Files returns every record file written, in split order.
func (s *Summary) Files() []string {
	var out []string
	for _, split := range dataset.Splits() {
		out = append(out, s.Splits[split].Files...)
	}
	return out
}

type options struct {
	clock    clock.Clock
	progress func(accepted, rejected int)
	readAll  bool
}

// Option customizes Run.
type Option func(*options)

// WithClock times the run with clk.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// WithProgress calls fn after every sample pulled from the source.
func WithProgress(fn func(accepted, rejected int)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// ReadAll makes Run read the source to the end, ignoring Config.Count.
func ReadAll() Option {
	return func(o *options) {
		o.readAll = true
	}
}

// Run pulls up to cfg.Count valid samples from src, partitions them and writes every non-empty
// split, the label map and the manifest into cfg.OutputDir. If the source ends early the samples
// gathered so far are written. Any I/O error stops the run.
func Run(ctx context.Context, src Source, cfg Config, logger logging.Logger, opts ...Option) (*Summary, error) {
	o := options{clock: clock.New(), progress: func(int, int) {}}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate("generate"); err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, ManifestFile)); err == nil {
		return nil, errors.Errorf("%s already holds a generated dataset", cfg.OutputDir)
	}

	summary := &Summary{
		RunID:     uuid.NewString(),
		Seed:      cfg.Seed,
		Requested: cfg.Count,
		Splits:    map[dataset.Split]dataset.PartitionInfo{},
		Started:   o.clock.Now().UTC(),
	}
	logger.Infow("generating dataset", "run", summary.RunID, "count", cfg.Count, "out", cfg.OutputDir)

	limit := cfg.Count
	if o.readAll {
		limit = -1
	}
	samples, err := pull(ctx, src, limit, summary, logger, o.progress)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.Errorf("source produced no valid samples (%d rejected)", summary.Rejected)
	}
	if o.readAll {
		summary.Requested = summary.Accepted + summary.Rejected
	} else if len(samples) < cfg.Count {
		logger.Warnw("source ended early", "requested", cfg.Count, "accepted", len(samples))
	}

	parts, err := dataset.Partition(samples, cfg.Splits, cfg.Seed)
	if err != nil {
		return nil, err
	}
	stats := dataset.NewStats()
	for _, s := range samples {
		stats.Add(s)
	}
	summary.PerClass = stats.PerClass
	summary.Regions = stats.Regions
	if summary.BoxSizes, err = stats.BoxSummary(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "creating %s", cfg.OutputDir)
	}
	if err := writeDataset(cfg, parts, summary, logger); err != nil {
		return nil, err
	}
	summary.Duration = o.clock.Since(summary.Started)

	if err := WriteManifest(filepath.Join(cfg.OutputDir, ManifestFile), summary); err != nil {
		removeOutputs(cfg.OutputDir, summary, true, logger)
		return nil, err
	}
	logger.Infow("dataset complete", "accepted", summary.Accepted, "rejected", summary.Rejected,
		"duration", summary.Duration)
	return summary, nil
}

// writeDataset writes every non-empty split and the label map. On failure the files written so
// far are removed so the directory can be reused.
func writeDataset(cfg Config, parts map[dataset.Split][]*dataset.Sample, summary *Summary, logger logging.Logger) error {
	for _, split := range dataset.Splits() {
		if len(parts[split]) == 0 {
			continue
		}
		info, err := dataset.WritePartition(cfg.OutputDir, split, parts[split], cfg.ShardSize)
		if err != nil {
			removeOutputs(cfg.OutputDir, summary, false, logger)
			return errors.Wrapf(err, "writing %s split", split)
		}
		summary.Splits[split] = info
		logger.Infow("wrote split", "split", split, "size", info.Size, "files", len(info.Files))
	}
	if err := dataset.WriteLabelMap(cfg.OutputDir); err != nil {
		removeOutputs(cfg.OutputDir, summary, true, logger)
		return err
	}
	return nil
}

// removeOutputs deletes the record files and meta data, and the label map when labelMap is set, of
// a run that did not finish.
func removeOutputs(dir string, summary *Summary, labelMap bool, logger logging.Logger) {
	var paths []string
	if labelMap {
		paths = append(paths, filepath.Join(dir, dataset.LabelMapFile))
	}
	for split, info := range summary.Splits {
		paths = append(paths, info.Files...)
		paths = append(paths, filepath.Join(dir, dataset.MetaDataName(split)))
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnw("could not remove partial output", "path", p, "error", err)
		}
	}
	summary.Splits = map[dataset.Split]dataset.PartitionInfo{}
}

// pull reads until limit samples are accepted or, with a negative limit, until io.EOF.
func pull(
	ctx context.Context, src Source, limit int, summary *Summary, logger logging.Logger,
	progress func(accepted, rejected int),
) ([]*dataset.Sample, error) {
	var samples []*dataset.Sample
	for limit < 0 || len(samples) < limit {
		s, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return samples, nil
		case errors.Is(err, dataset.ErrMalformed):
			summary.Rejected++
			logger.Warnw("rejecting sample", "error", err)
		case err != nil:
			return nil, errors.Wrap(err, "reading samples")
		case s == nil:
			return nil, errors.New("reading samples: source returned neither a sample nor an error")
		default:
			if verr := s.Validate(); verr != nil {
				summary.Rejected++
				logger.Warnw("rejecting sample", "error", verr)
				break
			}
			samples = append(samples, s)
			summary.Accepted++
		}
		progress(summary.Accepted, summary.Rejected)
	}
	return samples, nil
}

// WriteManifest writes summary as indented json.
func WriteManifest(path string, summary *Summary) error {
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, append(out, '\n'), 0o640), "writing %s", path)
}

// ReadManifest reads a manifest written by Run.
func ReadManifest(path string) (*Summary, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &s, nil
}
