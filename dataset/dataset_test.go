package dataset

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/suas-odlc/odlc/target"
	"github.com/suas-odlc/odlc/tfrecord"
)

func makeSample(id string, regions ...Region) *Sample {
	return &Sample{
		ID:       id,
		Filename: id + ".png",
		Format:   FormatPNG,
		Width:    640,
		Height:   480,
		Image:    []byte("not really a png " + id),
		Regions:  regions,
	}
}

var starRegion = Region{
	Label:             target.Star,
	Box:               image.Rect(10, 20, 74, 90),
	ShapeColor:        target.Red,
	Alphanumeric:      "K",
	AlphanumericColor: target.White,
}

func TestValidate(t *testing.T) {
	test.That(t, makeSample("ok", starRegion).Validate(), test.ShouldBeNil)

	edge := starRegion
	edge.Box = image.Rect(600, 400, 640, 480)
	test.That(t, makeSample("edge", edge).Validate(), test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		modify func(s *Sample)
	}{
		{"no filename", func(s *Sample) { s.Filename = "" }},
		{"parent filename", func(s *Sample) { s.Filename = "../escape.png" }},
		{"nested filename", func(s *Sample) { s.Filename = "a/img.png" }},
		{"dot dot", func(s *Sample) { s.Filename = ".." }},
		{"no regions", func(s *Sample) { s.Regions = nil }},
		{"zero width", func(s *Sample) { s.Width = 0 }},
		{"no image", func(s *Sample) { s.Image = nil }},
		{"bad format", func(s *Sample) { s.Format = "gif" }},
		{"unknown label", func(s *Sample) { s.Regions[0].Label = "blob" }},
		{"empty box", func(s *Sample) { s.Regions[0].Box = image.Rect(5, 5, 5, 20) }},
		{"outside", func(s *Sample) { s.Regions[0].Box = image.Rect(600, 400, 641, 480) }},
		{"negative", func(s *Sample) { s.Regions[0].Box = image.Rect(-1, 0, 10, 10) }},
		{"bad color", func(s *Sample) { s.Regions[0].ShapeColor = "teal" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := makeSample("bad", starRegion)
			tc.modify(s)
			err := s.Validate()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, ErrMalformed), test.ShouldBeTrue)
		})
	}
}

func TestNames(t *testing.T) {
	names := NewNames()
	a := makeSample("a", starRegion)
	for _, tc := range []struct {
		ext      string
		expected string
	}{
		{"", "a.png"},
		{"", "a-1.png"},
		{".xml", "a.xml"},
		{".png", "a-2.png"},
	} {
		name, err := names.Claim(a, tc.ext)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, name, test.ShouldEqual, tc.expected)
	}

	bad := makeSample("b", starRegion)
	bad.Filename = "../b.png"
	_, err := names.Claim(bad, "")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRatiosUnmarshalReplaces(t *testing.T) {
	r := DefaultRatios
	test.That(t, json.Unmarshal([]byte(`{"train": 0.8, "validation": 0.2}`), &r), test.ShouldBeNil)
	test.That(t, r, test.ShouldResemble, Ratios{Train: 0.8, Validation: 0.2})
	counts, err := r.Counts(10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, counts, test.ShouldResemble, map[Split]int{SplitTrain: 8, SplitValidation: 2, SplitTest: 0})
	test.That(t, json.Unmarshal([]byte(`{"train": "x"}`), &r), test.ShouldNotBeNil)
}

func TestExampleConversion(t *testing.T) {
	plain := Region{Label: target.Circle, Box: image.Rect(0, 0, 1, 1)}
	s := makeSample("abc", starRegion, plain)

	e, err := ToExample(s)
	test.That(t, err, test.ShouldBeNil)
	labels, err := e.Int64s(KeyClassLabel)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, labels, test.ShouldResemble, []int64{12, 1})
	view, err := e.Strings(KeyView)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, view, test.ShouldResemble, []string{"Unspecified", "Unspecified"})
	xmin, err := e.Floats(KeyXMin)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, xmin[0], test.ShouldAlmostEqual, 10.0/640, 1e-6)

	decoded, err := tfrecord.UnmarshalExample(e.Marshal())
	test.That(t, err, test.ShouldBeNil)
	back, err := FromExample(decoded)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, s)

	_, err = ToExample(makeSample("empty"))
	test.That(t, errors.Is(err, ErrMalformed), test.ShouldBeTrue)

	e.Set(KeyEncoded, tfrecord.BytesFeature([]byte("tampered")))
	_, err = FromExample(e)
	test.That(t, errors.Is(err, ErrMalformed), test.ShouldBeTrue)
}

func TestFromExampleWithoutAttributes(t *testing.T) {
	e, err := ToExample(makeSample("x", starRegion))
	test.That(t, err, test.ShouldBeNil)
	delete(e.Features, KeyColor)
	delete(e.Features, KeyAlphanumeric)
	delete(e.Features, KeyAlphanumericColor)
	s, err := FromExample(e)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Regions[0].Label, test.ShouldEqual, target.Star)
	test.That(t, s.Regions[0].Box, test.ShouldResemble, starRegion.Box)
	test.That(t, s.Regions[0].ShapeColor, test.ShouldEqual, target.Color(""))

	e.Set(KeyXMax, tfrecord.FloatFeature(0.1, 0.2))
	_, err = FromExample(e)
	test.That(t, errors.Is(err, ErrMalformed), test.ShouldBeTrue)
}

func TestCounts(t *testing.T) {
	for _, tc := range []struct {
		n        int
		ratios   Ratios
		expected [3]int
	}{
		{10, Ratios{Train: 0.8, Validation: 0.2}, [3]int{8, 2, 0}},
		{10, DefaultRatios, [3]int{8, 1, 1}},
		{7, Ratios{Train: 1, Validation: 1, Test: 1}, [3]int{3, 2, 2}},
		{1, Ratios{Train: 0.5, Validation: 0.5}, [3]int{1, 0, 0}},
		{0, DefaultRatios, [3]int{0, 0, 0}},
		{11, Ratios{Train: 80, Validation: 20}, [3]int{9, 2, 0}},
	} {
		t.Run(fmt.Sprintf("%d-%v", tc.n, tc.ratios), func(t *testing.T) {
			counts, err := tc.ratios.Counts(tc.n)
			test.That(t, err, test.ShouldBeNil)
			got := [3]int{counts[SplitTrain], counts[SplitValidation], counts[SplitTest]}
			test.That(t, got, test.ShouldResemble, tc.expected)
		})
	}

	_, err := Ratios{Train: 0, Validation: 1}.Counts(5)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Ratios{Train: 1, Test: -1}.Counts(5)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPartition(t *testing.T) {
	var samples []*Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, makeSample(fmt.Sprint(i), starRegion))
	}
	parts, err := Partition(samples, Ratios{Train: 0.8, Validation: 0.2}, 42)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(parts[SplitTrain]), test.ShouldEqual, 8)
	test.That(t, len(parts[SplitValidation]), test.ShouldEqual, 2)
	test.That(t, len(parts[SplitTest]), test.ShouldEqual, 0)

	seen := map[string]bool{}
	for _, split := range Splits() {
		for _, s := range parts[split] {
			test.That(t, seen[s.ID], test.ShouldBeFalse)
			seen[s.ID] = true
		}
	}
	test.That(t, len(seen), test.ShouldEqual, 10)
	test.That(t, samples[0].ID, test.ShouldEqual, "0")

	again, err := Partition(samples, Ratios{Train: 0.8, Validation: 0.2}, 42)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, parts)
}

func TestWritePartition(t *testing.T) {
	dir := t.TempDir()
	var samples []*Sample
	for i := 0; i < 5; i++ {
		r := starRegion
		r.Box = r.Box.Add(image.Pt(i, i))
		samples = append(samples, makeSample(fmt.Sprintf("s%d", i), r))
	}

	info, err := WritePartition(dir, SplitTrain, samples, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size, test.ShouldEqual, 5)
	test.That(t, len(info.Files), test.ShouldEqual, 3)
	test.That(t, filepath.Base(info.Files[0]), test.ShouldEqual, "train-00000-of-00003.tfrecord")
	test.That(t, filepath.Base(info.Files[2]), test.ShouldEqual, "train-00002-of-00003.tfrecord")
	test.That(t, info.Bytes, test.ShouldBeGreaterThan, 0)

	files, err := PartitionFiles(dir, SplitTrain)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldResemble, info.Files)

	back, err := ReadSamples(files...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, samples)

	meta, err := CheckPartition(dir, SplitTrain)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meta.Size, test.ShouldEqual, 5)
	test.That(t, meta.LabelMap[12], test.ShouldEqual, "star")

	_, err = CheckPartition(dir, SplitTest)
	test.That(t, err, test.ShouldNotBeNil)

	// record files are written once
	_, err = WritePartition(dir, SplitTrain, samples, 2)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "already exists")
	back, err = ReadSamples(files...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, samples)

	// a partition failing on a later shard leaves none of its files behind
	other := filepath.Join(t.TempDir(), "other")
	test.That(t, os.MkdirAll(other, 0o750), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(other, ShardName(SplitTest, 1, 3)), nil, 0o600), test.ShouldBeNil)
	_, err = WritePartition(other, SplitTest, samples, 2)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = os.Stat(filepath.Join(other, ShardName(SplitTest, 0, 3)))
	test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeTrue)

	test.That(t, WriteLabelMap(dir), test.ShouldBeNil)
	pbtxt, err := os.ReadFile(filepath.Join(dir, LabelMapFile))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(pbtxt), test.ShouldContainSubstring, "item {\n  id: 1\n  name: 'circle'\n}\n")
}

func TestWritePartitionRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	bad := makeSample("bad", starRegion)
	bad.Regions[0].Box = image.Rect(0, 0, 700, 10)
	_, err := WritePartition(dir, SplitTest, []*Sample{makeSample("good", starRegion), bad}, 0)
	test.That(t, errors.Is(err, ErrMalformed), test.ShouldBeTrue)
	files, err := PartitionFiles(dir, SplitTest)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldBeEmpty)
}

func TestStats(t *testing.T) {
	st := NewStats()
	summary, err := st.BoxSummary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary, test.ShouldResemble, Summary{})

	square := Region{Label: target.Square, Box: image.Rect(0, 0, 10, 10)}
	big := Region{Label: target.Square, Box: image.Rect(0, 0, 30, 30)}
	st.Add(makeSample("a", square, starRegion))
	st.Add(makeSample("b", big))

	test.That(t, st.Samples, test.ShouldEqual, 2)
	test.That(t, st.Regions, test.ShouldEqual, 3)
	test.That(t, st.PerClass[target.Square], test.ShouldEqual, 2)
	test.That(t, st.PerClass[target.Star], test.ShouldEqual, 1)
	test.That(t, st.Classes(), test.ShouldResemble, []target.Shape{target.Square, target.Star})

	summary, err = st.BoxSummary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Min, test.ShouldEqual, 10.0)
	test.That(t, summary.Max, test.ShouldEqual, 30.0)
}
