package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/pathplan"
	"github.com/suas-odlc/odlc/train"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Train.Runner, test.ShouldEqual, train.RunnerLocal)
}

func TestFromReader(t *testing.T) {
	cfg, err := FromReader("odlc.json", strings.NewReader(`{
		"generate": {"count": 10, "splits": {"train": 0.8, "validation": 0.2, "test": 0}, "output_dir": "out"},
		"synth": {"width": 320, "height": 240, "max_target_size": 64},
		"plan": {"obstacles": 2}
	}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "odlc.json")
	test.That(t, cfg.Generate.Count, test.ShouldEqual, 10)
	test.That(t, cfg.Generate.Splits.Validation, test.ShouldEqual, 0.2)
	// untouched fields keep their defaults
	test.That(t, cfg.Generate.Seed, test.ShouldEqual, int64(1))
	test.That(t, cfg.Synth.Width, test.ShouldEqual, 320)
	test.That(t, cfg.Synth.MinTargetSize, test.ShouldEqual, Default().Synth.MinTargetSize)
	test.That(t, cfg.Plan.Obstacles, test.ShouldEqual, 2)
	test.That(t, cfg.Plan.HeightCosts[pathplan.Lowest], test.ShouldEqual, 0.1)

	cfg, err = FromReader("odlc.json5", strings.NewReader(`{
		// smaller run
		generate: {count: 3, output_dir: "small"}
	}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Generate.Count, test.ShouldEqual, 3)
	test.That(t, cfg.Generate.OutputDir, test.ShouldEqual, "small")

	// a splits object replaces the default ratios instead of merging with them
	cfg, err = FromReader("odlc.json", strings.NewReader(`{"generate": {"splits": {"train": 0.8, "validation": 0.2}}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Generate.Splits, test.ShouldResemble, dataset.Ratios{Train: 0.8, Validation: 0.2})
	counts, err := cfg.Generate.Splits.Counts(10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, counts[dataset.SplitTrain], test.ShouldEqual, 8)
	test.That(t, counts[dataset.SplitValidation], test.ShouldEqual, 2)
	test.That(t, counts[dataset.SplitTest], test.ShouldEqual, 0)

	for _, tc := range []struct {
		name     string
		in       string
		expected string
	}{
		{"bad json", `{"generate": `, "failed to decode"},
		{"unknown field", `{"generat": {}}`, "unknown field"},
		{"invalid section", `{"generate": {"count": 0}}`, "generate"},
		{"both imports", `{"import": {"voc": "a", "jsonl": "b"}}`, "only one"},
		{"plan", `{"plan": {"step": -1}}`, "plan"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("odlc.json", strings.NewReader(tc.in))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expected)
		})
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odlc.json")
	t.Setenv("ODLC_TEST_OUT", "/data/run1")
	err := os.WriteFile(path, []byte(`{"generate": {"count": 5, "output_dir": "${ODLC_TEST_OUT}"}}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Generate.OutputDir, test.ShouldEqual, "/data/run1")
	test.That(t, cfg.Generate.Count, test.ShouldEqual, 5)

	_, err = Read(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ReadOrDefault(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSchema(t *testing.T) {
	out, err := json.Marshal(Schema())
	test.That(t, err, test.ShouldBeNil)
	for _, field := range []string{`"generate"`, `"synth"`, `"train"`, `"max_climb"`, `"output_dir"`} {
		test.That(t, string(out), test.ShouldContainSubstring, field)
	}
	test.That(t, string(out), test.ShouldNotContainSubstring, "ConfigFilePath")
}
