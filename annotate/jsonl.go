package annotate

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/logging"
)

// ImageMetadata is one line of a JSON Lines dataset export.
type ImageMetadata struct {
	ImagePath       string           `json:"image_path"`
	BBoxAnnotations []BBoxAnnotation `json:"bounding_box_annotations"`
	Timestamp       string           `json:"timestamp,omitempty"`
}

// BBoxAnnotation holds a normalized bounding box and its label. The target attributes are
// optional.
type BBoxAnnotation struct {
	AnnotationLabel   string  `json:"annotation_label"`
	XMinNormalized    float64 `json:"x_min_normalized"`
	XMaxNormalized    float64 `json:"x_max_normalized"`
	YMinNormalized    float64 `json:"y_min_normalized"`
	YMaxNormalized    float64 `json:"y_max_normalized"`
	ShapeColor        string  `json:"shape_color,omitempty"`
	Alphanumeric      string  `json:"alphanumeric,omitempty"`
	AlphanumericColor string  `json:"alphanumeric_color,omitempty"`
}

const maxLineSize = 1 << 20

// JSONLSource yields one sample per line of a JSON Lines file.
type JSONLSource struct {
	f         *os.File
	scanner   *bufio.Scanner
	imagesDir string
	line      int
	logger    logging.Logger
}

// NewJSONLSource opens path. Relative image paths resolve against imagesDir, or against the
// directory of path when imagesDir is empty.
func NewJSONLSource(path, imagesDir string, logger logging.Logger) (*JSONLSource, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	if imagesDir == "" {
		imagesDir = filepath.Dir(path)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &JSONLSource{f: f, scanner: scanner, imagesDir: imagesDir, logger: logger}, nil
}

// Next returns the sample of the next non-blank line, or io.EOF. A line that cannot be parsed
// returns an error wrapping dataset.ErrMalformed; reading may continue after it.
func (s *JSONLSource) Next(ctx context.Context) (*dataset.Sample, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, errors.Wrapf(err, "reading %s", s.f.Name())
			}
			return nil, io.EOF
		}
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var meta ImageMetadata
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			return nil, errors.Wrapf(dataset.ErrMalformed, "%s line %d: %v", s.f.Name(), s.line, err)
		}
		return s.toSample(meta)
	}
}

func (s *JSONLSource) toSample(meta ImageMetadata) (*dataset.Sample, error) {
	if meta.ImagePath == "" {
		return nil, errors.Wrapf(dataset.ErrMalformed, "%s line %d has no image_path", s.f.Name(), s.line)
	}
	path := filepath.FromSlash(meta.ImagePath)
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.imagesDir, path)
	}
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	sample := &dataset.Sample{
		ID:       sampleID(path),
		Filename: filepath.Base(path),
		Format:   img.format,
		Width:    img.width,
		Height:   img.height,
		Image:    img.data,
	}
	w, h := float64(img.width), float64(img.height)
	for _, b := range meta.BBoxAnnotations {
		r := dataset.Region{
			Label:             parseLabel(b.AnnotationLabel),
			ShapeColor:        parseColor(b.ShapeColor),
			Alphanumeric:      parseAlphanumeric(b.Alphanumeric),
			AlphanumericColor: parseColor(b.AlphanumericColor),
		}
		r.Box.Min.X, r.Box.Max.X = roundCoord(b.XMinNormalized*w), roundCoord(b.XMaxNormalized*w)
		r.Box.Min.Y, r.Box.Max.Y = roundCoord(b.YMinNormalized*h), roundCoord(b.YMaxNormalized*h)
		sample.Regions = append(sample.Regions, r)
	}
	s.logger.Debugw("read annotation", "image", sample.Filename, "regions", len(sample.Regions))
	return sample, nil
}

// Close closes the underlying file.
func (s *JSONLSource) Close() error {
	return s.f.Close()
}

// WriteJSONL writes samples as JSON Lines next to their images: each image is stored in
// imagesDir under its filename and referenced relative to it. Samples sharing a filename are
// stored under distinct names.
func WriteJSONL(w io.Writer, imagesDir string, samples []*dataset.Sample) error {
	enc := json.NewEncoder(w)
	names := dataset.NewNames()
	for _, sample := range samples {
		name, err := names.Claim(sample, "")
		if err != nil {
			return err
		}
		path := filepath.Join(imagesDir, name)
		if err := os.WriteFile(path, sample.Image, 0o640); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
		meta := ImageMetadata{ImagePath: name}
		for _, r := range sample.Regions {
			nb := r.Normalized(sample.Width, sample.Height)
			meta.BBoxAnnotations = append(meta.BBoxAnnotations, BBoxAnnotation{
				AnnotationLabel:   string(r.Label),
				XMinNormalized:    nb.XMin,
				XMaxNormalized:    nb.XMax,
				YMinNormalized:    nb.YMin,
				YMaxNormalized:    nb.YMax,
				ShapeColor:        string(r.ShapeColor),
				Alphanumeric:      string(r.Alphanumeric),
				AlphanumericColor: string(r.AlphanumericColor),
			})
		}
		if err := enc.Encode(meta); err != nil {
			return errors.Wrapf(err, "encoding %s", name)
		}
	}
	return nil
}
