package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"github.com/suas-odlc/odlc/target"
	"github.com/suas-odlc/odlc/tfrecord"
)

// LabelMapFile is the name of the label map written next to the record files.
const LabelMapFile = "label_map.pbtxt"

// MetaData is the cache meta data the model-maker data loader reads for a split.
type MetaData struct {
	Size     int            `yaml:"size"`
	LabelMap map[int]string `yaml:"label_map"`
}

// PartitionInfo describes the files written for one split.
type PartitionInfo struct {
	Split Split    `json:"split"`
	Size  int      `json:"size"`
	Files []string `json:"files"`
	Bytes int64    `json:"bytes"`
}

// ShardName returns the file name of shard index out of count for split.
func ShardName(split Split, index, count int) string {
	return fmt.Sprintf("%s-%05d-of-%05d.tfrecord", split, index, count)
}

// MetaDataName returns the meta data file name of split.
func MetaDataName(split Split) string {
	return string(split) + "_meta_data.yaml"
}

// WritePartition writes samples as the record files of split in dir, at most shardSize records
// per file (all in one file when shardSize <= 0), then the split's meta data. Existing files are
// never overwritten. Every sample is validated before anything is written, and the files of a
// partition that fails halfway are removed.
func WritePartition(dir string, split Split, samples []*Sample, shardSize int) (info PartitionInfo, err error) {
	info = PartitionInfo{Split: split, Size: len(samples)}
	if len(samples) == 0 {
		return info, errors.Errorf("no samples for split %s", split)
	}
	records := make([][]byte, 0, len(samples))
	for _, s := range samples {
		e, err := ToExample(s)
		if err != nil {
			return info, err
		}
		records = append(records, e.Marshal())
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return info, errors.Wrapf(err, "creating %s", dir)
	}
	defer func() {
		if err == nil {
			return
		}
		for _, p := range info.Files {
			utils.UncheckedError(os.Remove(p))
		}
		info.Files = nil
	}()

	if shardSize <= 0 || shardSize > len(records) {
		shardSize = len(records)
	}
	shards := (len(records) + shardSize - 1) / shardSize
	for i := 0; i < shards; i++ {
		end := (i + 1) * shardSize
		if end > len(records) {
			end = len(records)
		}
		path := filepath.Join(dir, ShardName(split, i, shards))
		n, err := writeRecordFile(path, records[i*shardSize:end])
		if err != nil {
			return info, err
		}
		info.Files = append(info.Files, path)
		info.Bytes += n
	}

	meta := MetaData{Size: len(samples), LabelMap: target.LabelMap()}
	if err := WriteMetaData(filepath.Join(dir, MetaDataName(split)), meta); err != nil {
		return info, err
	}
	return info, nil
}

func writeRecordFile(path string, records [][]byte) (n int64, err error) {
	//nolint:gosec
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if errors.Is(err, os.ErrExist) {
		return 0, errors.Errorf("record file %s already exists, remove it or write to another directory", path)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "creating record file %s", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
		if err != nil {
			utils.UncheckedError(os.Remove(path))
		}
	}()
	w := tfrecord.NewWriter(f)
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return 0, errors.Wrapf(err, "writing %s", path)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, errors.Wrapf(err, "flushing %s", path)
	}
	return w.Size(), nil
}

// WriteMetaData writes meta as yaml to path.
func WriteMetaData(path string, meta MetaData) error {
	out, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, out, 0o640), "writing %s", path)
}

// ReadMetaData reads the cache meta data at path.
func ReadMetaData(path string) (MetaData, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return MetaData{}, errors.Wrapf(err, "reading %s", path)
	}
	var meta MetaData
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return MetaData{}, errors.Wrapf(err, "parsing %s", path)
	}
	return meta, nil
}

// WriteLabelMap writes the taxonomy as a label_map.pbtxt in dir.
func WriteLabelMap(dir string) error {
	var sb strings.Builder
	for _, s := range target.Shapes() {
		fmt.Fprintf(&sb, "item {\n  id: %d\n  name: '%s'\n}\n", s.ID(), s)
	}
	path := filepath.Join(dir, LabelMapFile)
	return errors.Wrapf(os.WriteFile(path, []byte(sb.String()), 0o640), "writing %s", path)
}

// PartitionFiles returns the record files of split in dir, sorted by shard.
func PartitionFiles(dir string, split Split) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, string(split)+"-*-of-*.tfrecord"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// CheckPartition verifies that split in dir is complete: its meta data is present with a
// non-zero size and at least one record file exists.
func CheckPartition(dir string, split Split) (MetaData, error) {
	meta, err := ReadMetaData(filepath.Join(dir, MetaDataName(split)))
	if err != nil {
		return MetaData{}, err
	}
	if meta.Size <= 0 {
		return MetaData{}, errors.Errorf("split %s in %s is empty", split, dir)
	}
	if len(meta.LabelMap) == 0 {
		return MetaData{}, errors.Errorf("split %s in %s has no label map", split, dir)
	}
	files, err := PartitionFiles(dir, split)
	if err != nil {
		return MetaData{}, err
	}
	if len(files) == 0 {
		return MetaData{}, errors.Errorf("split %s in %s has no record files", split, dir)
	}
	return meta, nil
}

// ReadRecordFile decodes every sample of the record file at path, calling fn for each. Reading
// stops at the first error, including an error returned by fn.
func ReadRecordFile(path string, fn func(*Sample) error) (err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	r := tfrecord.NewReader(f)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		e, err := tfrecord.UnmarshalExample(rec)
		if err != nil {
			return errors.Wrapf(err, "decoding record %d of %s", r.Count(), path)
		}
		s, err := FromExample(e)
		if err != nil {
			return errors.Wrapf(err, "record %d of %s", r.Count(), path)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
}

// ReadSamples returns every sample of the given record files in order.
func ReadSamples(paths ...string) ([]*Sample, error) {
	var out []*Sample
	for _, p := range paths {
		if err := ReadRecordFile(p, func(s *Sample) error {
			out = append(out, s)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
