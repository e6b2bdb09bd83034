package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.viam.com/test"

	"github.com/suas-odlc/odlc/config"
	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/pathplan"
	"github.com/suas-odlc/odlc/rimage"
)

// runApp runs odlc with args and returns its standard output and error output.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"odlc", "--no-progress"}, args...))
	return out.String(), errOut.String(), err
}

func writeProjectFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "odlc.json")
	err := os.WriteFile(path, []byte(`{
		"synth": {"width": 160, "height": 120, "min_target_size": 12, "max_target_size": 40, "format": "png"}
	}`), 0o600)
	test.That(t, err, test.ShouldBeNil)
	return path
}

func countFiles(t *testing.T, dir, pattern string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	test.That(t, err, test.ShouldBeNil)
	return len(matches)
}

func TestDatasetCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeProjectFile(t, dir)
	data := filepath.Join(dir, "data")

	out, _, err := runApp(t, "--config", cfgPath, "generate",
		"--count", "6", "--train", "0.5", "--validation", "0.5", "--seed", "3", "--out", data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "6 accepted, 0 rejected")
	for _, split := range []dataset.Split{dataset.SplitTrain, dataset.SplitValidation} {
		meta, err := dataset.CheckPartition(data, split)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, meta.Size, test.ShouldEqual, 3)
	}
	_, err = dataset.CheckPartition(data, dataset.SplitTest)
	test.That(t, err, test.ShouldNotBeNil)

	// records are written once
	_, _, err = runApp(t, "--config", cfgPath, "generate", "--count", "6", "--out", data)
	test.That(t, err, test.ShouldNotBeNil)

	t.Run("inspect", func(t *testing.T) {
		out, _, err := runApp(t, "inspect", data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldContainSubstring, "train-00000-of-00001.tfrecord")
		test.That(t, out, test.ShouldContainSubstring, "box size (px)")

		_, _, err = runApp(t, "inspect")
		test.That(t, err, test.ShouldNotBeNil)
		_, _, err = runApp(t, "inspect", dir)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("preview", func(t *testing.T) {
		previews := filepath.Join(dir, "previews")
		out, _, err := runApp(t, "preview", "--out", previews, "--limit", "2", data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldContainSubstring, "wrote 2 previews")
		test.That(t, countFiles(t, previews, "*.png"), test.ShouldEqual, 2)
	})

	t.Run("voc round trip", func(t *testing.T) {
		exported := filepath.Join(dir, "voc")
		_, _, err := runApp(t, "export", "--out", exported, data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, countFiles(t, filepath.Join(exported, "annotations"), "*.xml"), test.ShouldEqual, 6)
		test.That(t, countFiles(t, filepath.Join(exported, "images"), "*.png"), test.ShouldEqual, 6)

		imported := filepath.Join(dir, "voc-data")
		out, _, err := runApp(t, "import", "--voc", filepath.Join(exported, "annotations"),
			"--images", filepath.Join(exported, "images"), "--train", "1", "--out", imported)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldContainSubstring, "6 accepted, 0 rejected")

		before, err := dataset.ReadSamples(filepath.Join(data, dataset.ShardName(dataset.SplitTrain, 0, 1)),
			filepath.Join(data, dataset.ShardName(dataset.SplitValidation, 0, 1)))
		test.That(t, err, test.ShouldBeNil)
		after, err := dataset.ReadSamples(filepath.Join(imported, dataset.ShardName(dataset.SplitTrain, 0, 1)))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(after), test.ShouldEqual, len(before))
		regions := map[string]int{}
		for _, s := range before {
			regions[s.Filename] = len(s.Regions)
		}
		for _, s := range after {
			test.That(t, len(s.Regions), test.ShouldEqual, regions[s.Filename])
		}
	})

	t.Run("jsonl round trip", func(t *testing.T) {
		exported := filepath.Join(dir, "jsonl")
		_, _, err := runApp(t, "export", "--format", "jsonl", "--out", exported, data)
		test.That(t, err, test.ShouldBeNil)

		//nolint:gosec
		f, err := os.Open(filepath.Join(exported, "dataset.jsonl"))
		test.That(t, err, test.ShouldBeNil)
		defer f.Close()
		lines := 0
		for scanner := bufio.NewScanner(f); scanner.Scan(); {
			lines++
		}
		test.That(t, lines, test.ShouldEqual, 6)

		out, _, err := runApp(t, "import", "--jsonl", filepath.Join(exported, "dataset.jsonl"),
			"--out", filepath.Join(dir, "jsonl-data"))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldContainSubstring, "6 accepted, 0 rejected")
	})

	_, _, err = runApp(t, "export", "--format", "coco", "--out", filepath.Join(dir, "coco"), data)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGenerateFlagErrors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeProjectFile(t, dir)

	_, _, err := runApp(t, "--config", cfgPath, "generate", "--size", "wide", "--out", filepath.Join(dir, "a"))
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = runApp(t, "--config", cfgPath, "generate", "--train", "0", "--test", "1", "--out", filepath.Join(dir, "b"))
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = runApp(t, "--config", filepath.Join(dir, "missing.json"), "generate")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestImportRequiresSource(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runApp(t, "import", "--out", dir)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "is required")

	_, _, err = runApp(t, "import", "--voc", dir, "--jsonl", filepath.Join(dir, "x.jsonl"), "--out", dir)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "only one")
}

func TestTrainDryRun(t *testing.T) {
	out, _, err := runApp(t, "train", "--dry-run", "--dataset", "data", "--export", "model",
		"--model", "efficientdet_lite2", "--epochs", "3")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "object_detector.create(")
	test.That(t, out, test.ShouldContainSubstring, "efficientdet_lite2")

	_, _, err = runApp(t, "train", "--dry-run", "--model", "yolo")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlan(t *testing.T) {
	dir := t.TempDir()
	plot := filepath.Join(dir, "plan.png")
	wpFile := filepath.Join(dir, "waypoints.json")
	out, _, err := runApp(t, "plan", "--obstacles", "3", "--seed", "5", "--plot", plot, "--waypoints", wpFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "3 obstacles")
	test.That(t, out, test.ShouldContainSubstring, "least_diff")

	info, err := os.Stat(plot)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)

	raw, err := os.ReadFile(wpFile)
	test.That(t, err, test.ShouldBeNil)
	var waypoints map[pathplan.Heuristic][]pathplan.Waypoint
	test.That(t, json.Unmarshal(raw, &waypoints), test.ShouldBeNil)
	test.That(t, len(waypoints), test.ShouldEqual, 3)
	for _, wps := range waypoints {
		test.That(t, wps[0].X, test.ShouldEqual, 2.0)
		test.That(t, wps[0].Y, test.ShouldEqual, 2.0)
	}
}

func TestConfigCommands(t *testing.T) {
	out, _, err := runApp(t, "config", "schema")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, `"generate"`)

	out, _, err = runApp(t, "config", "defaults")
	test.That(t, err, test.ShouldBeNil)
	cfg, err := config.FromReader("defaults", strings.NewReader(out))
	test.That(t, err, test.ShouldBeNil)
	diff := cmp.Diff(config.Default(), cfg, cmpopts.IgnoreFields(config.Config{}, "ConfigFilePath"), cmpopts.EquateEmpty())
	test.That(t, diff, test.ShouldBeEmpty)

	out, _, err = runApp(t, "version")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "odlc (dev)")
}

func TestParseSize(t *testing.T) {
	for _, tc := range []struct {
		in            string
		width, height int
		ok            bool
	}{
		{"640x480", 640, 480, true},
		{"32X16", 32, 16, true},
		{"640", 0, 0, false},
		{"0x5", 0, 0, false},
		{"ax5", 0, 0, false},
	} {
		w, h, err := parseSize(tc.in)
		if !tc.ok {
			test.That(t, err, test.ShouldNotBeNil)
			continue
		}
		test.That(t, err, test.ShouldBeNil)
		test.That(t, w, test.ShouldEqual, tc.width)
		test.That(t, h, test.ShouldEqual, tc.height)
	}
}

func TestPathMetrics(t *testing.T) {
	length, top, climb := pathMetrics([]pathplan.Waypoint{
		{X: 0, Y: 0, Z: 10}, {X: 3, Y: 0, Z: 14}, {X: 3, Y: 1, Z: 12},
	})
	test.That(t, length, test.ShouldAlmostEqual, 5+math.Sqrt(5))
	test.That(t, top, test.ShouldEqual, 14.0)
	test.That(t, climb, test.ShouldEqual, 4.0)
}

func TestSameFilenameRoundTrip(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i, sub := range []string{"a", "b"} {
		test.That(t, os.Mkdir(filepath.Join(dir, sub), 0o750), test.ShouldBeNil)
		img := rimage.NoiseBackground(rand.New(rand.NewSource(int64(i))), 100, 80)
		data, err := rimage.Encode(img, rimage.FormatPNG, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, os.WriteFile(filepath.Join(dir, sub, "img.png"), data, 0o600), test.ShouldBeNil)
		lines = append(lines, `{"image_path": "`+sub+`/img.png", "bounding_box_annotations": [{"annotation_label": "star",`+
			` "x_min_normalized": 0.1, "x_max_normalized": 0.5, "y_min_normalized": 0.1, "y_max_normalized": 0.5}]}`)
	}
	jsonl := filepath.Join(dir, "dataset.jsonl")
	test.That(t, os.WriteFile(jsonl, []byte(strings.Join(lines, "\n")), 0o600), test.ShouldBeNil)

	data := filepath.Join(dir, "data")
	_, _, err := runApp(t, "import", "--jsonl", jsonl, "--train", "1", "--out", data)
	test.That(t, err, test.ShouldBeNil)

	exported := filepath.Join(dir, "exported")
	_, _, err = runApp(t, "export", "--format", "jsonl", "--out", exported, data)
	test.That(t, err, test.ShouldBeNil)
	first, err := os.ReadFile(filepath.Join(exported, "img.png"))
	test.That(t, err, test.ShouldBeNil)
	second, err := os.ReadFile(filepath.Join(exported, "img-1.png"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bytes.Equal(first, second), test.ShouldBeFalse)

	previews := filepath.Join(dir, "previews")
	_, _, err = runApp(t, "preview", "--out", previews, data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, countFiles(t, previews, "img*.png"), test.ShouldEqual, 2)
}
