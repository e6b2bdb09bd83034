package generator

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/logging"
	"github.com/suas-odlc/odlc/synth"
	"github.com/suas-odlc/odlc/target"
)

// sliceSource replays fixed results.
type sliceSource struct {
	samples []*dataset.Sample
	errs    []error
	i       int
}

func (s *sliceSource) Next(ctx context.Context) (*dataset.Sample, error) {
	if s.i >= len(s.samples) {
		return nil, io.EOF
	}
	defer func() { s.i++ }()
	if s.errs != nil && s.errs[s.i] != nil {
		return nil, s.errs[s.i]
	}
	return s.samples[s.i], nil
}

func sample(i int, box image.Rectangle) *dataset.Sample {
	return &dataset.Sample{
		ID:       fmt.Sprint(i),
		Filename: fmt.Sprintf("%d.png", i),
		Format:   dataset.FormatPNG,
		Width:    64,
		Height:   64,
		Image:    []byte{byte(i)},
		Regions:  []dataset.Region{{Label: target.Hexagon, Box: box}},
	}
}

func TestRunRejectsMalformed(t *testing.T) {
	src := &sliceSource{}
	for i := 0; i < 12; i++ {
		box := image.Rect(1, 1, 20, 20)
		if i%4 == 3 {
			box = image.Rect(50, 50, 70, 70)
		}
		src.samples = append(src.samples, sample(i, box))
	}
	src.errs = make([]error, len(src.samples))
	src.errs[5] = errors.Wrap(dataset.ErrMalformed, "unreadable")

	logger, logs := logging.NewObservedTestLogger(t)
	cfg := Config{Count: 5, Splits: dataset.Ratios{Train: 0.8, Validation: 0.2}, Seed: 3, OutputDir: t.TempDir()}
	var progress []int
	summary, err := Run(context.Background(), src, cfg, logger, WithProgress(func(accepted, rejected int) {
		progress = append(progress, accepted+rejected)
	}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Accepted, test.ShouldEqual, 5)
	test.That(t, summary.Rejected, test.ShouldEqual, 2)
	test.That(t, progress, test.ShouldResemble, []int{1, 2, 3, 4, 5, 6, 7})
	test.That(t, summary.Splits[dataset.SplitTrain].Size, test.ShouldEqual, 4)
	test.That(t, summary.Splits[dataset.SplitValidation].Size, test.ShouldEqual, 1)
	_, ok := summary.Splits[dataset.SplitTest]
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, logs.FilterMessageSnippet("rejecting sample").Len(), test.ShouldEqual, 2)

	read, err := dataset.ReadSamples(summary.Files()...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(read), test.ShouldEqual, 5)
	for _, s := range read {
		test.That(t, s.Validate(), test.ShouldBeNil)
		test.That(t, s.Regions[0].Box, test.ShouldResemble, image.Rect(1, 1, 20, 20))
	}

	manifest, err := ReadManifest(filepath.Join(cfg.OutputDir, ManifestFile))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, manifest.RunID, test.ShouldEqual, summary.RunID)
	test.That(t, manifest.PerClass[target.Hexagon], test.ShouldEqual, 5)
	test.That(t, manifest.Files(), test.ShouldResemble, summary.Files())

	// the output directory already holds a dataset
	_, err = Run(context.Background(), &sliceSource{samples: src.samples}, cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRunSourceErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := Config{Count: 3, Splits: dataset.DefaultRatios, OutputDir: t.TempDir()}

	_, err := Run(context.Background(), &sliceSource{}, cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no valid samples")

	boom := errors.New("disk on fire")
	src := &sliceSource{samples: []*dataset.Sample{nil}, errs: []error{boom}}
	_, err = Run(context.Background(), src, cfg, logger)
	test.That(t, errors.Is(err, boom), test.ShouldBeTrue)

	// a source must return a sample or an error
	_, err = Run(context.Background(), &sliceSource{samples: []*dataset.Sample{nil}}, cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "neither a sample nor an error")

	bad := cfg
	bad.Count = 0
	_, err = Run(context.Background(), &sliceSource{}, bad, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRunRemovesPartialOutput(t *testing.T) {
	var samples []*dataset.Sample
	for i := 0; i < 5; i++ {
		samples = append(samples, sample(i, image.Rect(0, 0, 8, 8)))
	}
	logger := logging.NewTestLogger(t)
	cfg := Config{Count: 5, Splits: dataset.Ratios{Train: 0.8, Validation: 0.2}, OutputDir: t.TempDir()}
	blocker := filepath.Join(cfg.OutputDir, dataset.ShardName(dataset.SplitValidation, 0, 1))
	test.That(t, os.WriteFile(blocker, []byte("left over"), 0o600), test.ShouldBeNil)

	_, err := Run(context.Background(), &sliceSource{samples: samples}, cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "already exists")
	for _, name := range []string{
		dataset.ShardName(dataset.SplitTrain, 0, 1),
		dataset.MetaDataName(dataset.SplitTrain),
		ManifestFile,
	} {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, name))
		test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeTrue)
	}
	data, err := os.ReadFile(blocker)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "left over")

	test.That(t, os.Remove(blocker), test.ShouldBeNil)
	summary, err := Run(context.Background(), &sliceSource{samples: samples}, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Splits[dataset.SplitTrain].Size, test.ShouldEqual, 4)
	test.That(t, summary.Splits[dataset.SplitValidation].Size, test.ShouldEqual, 1)
}

func TestRunEndsEarly(t *testing.T) {
	src := &sliceSource{}
	for i := 0; i < 3; i++ {
		src.samples = append(src.samples, sample(i, image.Rect(0, 0, 64, 64)))
	}
	logger, logs := logging.NewObservedTestLogger(t)
	cfg := Config{Count: 10, Splits: dataset.Ratios{Train: 1}, OutputDir: t.TempDir(), ShardSize: 2}
	summary, err := Run(context.Background(), src, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Accepted, test.ShouldEqual, 3)
	test.That(t, len(summary.Splits[dataset.SplitTrain].Files), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessageSnippet("source ended early").Len(), test.ShouldEqual, 1)
}

func TestRunReadAll(t *testing.T) {
	src := &sliceSource{}
	for i := 0; i < 4; i++ {
		src.samples = append(src.samples, sample(i, image.Rect(0, 0, 8, 8)))
	}
	src.errs = make([]error, len(src.samples))
	src.errs[2] = errors.Wrap(dataset.ErrMalformed, "bad line")

	logger, logs := logging.NewObservedTestLogger(t)
	cfg := Config{Count: 1, Splits: dataset.Ratios{Train: 1}, OutputDir: t.TempDir()}
	summary, err := Run(context.Background(), src, cfg, logger, ReadAll())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Accepted, test.ShouldEqual, 3)
	test.That(t, summary.Rejected, test.ShouldEqual, 1)
	test.That(t, summary.Requested, test.ShouldEqual, 4)
	test.That(t, logs.FilterMessageSnippet("source ended early").Len(), test.ShouldEqual, 0)

	manifest, err := ReadManifest(filepath.Join(cfg.OutputDir, ManifestFile))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, manifest.RunID, test.ShouldEqual, summary.RunID)
}

func TestRunSynthetic(t *testing.T) {
	scfg := synth.DefaultConfig()
	scfg.Width, scfg.Height = 128, 96
	scfg.MinTargetSize, scfg.MaxTargetSize = 12, 30
	gen, err := synth.NewGenerator(scfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	clk := clock.NewMock()
	cfg := Config{Count: 10, Splits: dataset.Ratios{Train: 0.8, Validation: 0.2}, Seed: 7, OutputDir: t.TempDir()}
	summary, err := Run(context.Background(), gen, cfg, logging.NewTestLogger(t),
		WithClock(clk),
		WithProgress(func(int, int) { clk.Add(time.Second) }),
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Rejected, test.ShouldEqual, 0)
	test.That(t, summary.Duration, test.ShouldEqual, 10*time.Second)

	train, err := dataset.CheckPartition(cfg.OutputDir, dataset.SplitTrain)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, train.Size, test.ShouldEqual, 8)
	validation, err := dataset.CheckPartition(cfg.OutputDir, dataset.SplitValidation)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, validation.Size, test.ShouldEqual, 2)

	read, err := dataset.ReadSamples(summary.Files()...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(read), test.ShouldEqual, 10)
	regions := 0
	for _, s := range read {
		test.That(t, s.Validate(), test.ShouldBeNil)
		for _, r := range s.Regions {
			test.That(t, r.Label.Valid(), test.ShouldBeTrue)
			test.That(t, r.Box.In(s.Bounds()), test.ShouldBeTrue)
		}
		regions += len(s.Regions)
	}
	test.That(t, regions, test.ShouldEqual, summary.Regions)
}
