package annotate

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/logging"
)

// VOCAnnotation is a Pascal VOC annotation file. The color and alphanumeric elements of an
// object are an extension of the format and may be absent.
type VOCAnnotation struct {
	XMLName  xml.Name    `xml:"annotation"`
	Folder   string      `xml:"folder,omitempty"`
	Filename string      `xml:"filename"`
	Path     string      `xml:"path,omitempty"`
	Size     VOCSize     `xml:"size"`
	Objects  []VOCObject `xml:"object"`
}

// VOCSize is the image size recorded in an annotation.
type VOCSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth,omitempty"`
}

// VOCObject is one annotated object.
type VOCObject struct {
	Name              string    `xml:"name"`
	Pose              string    `xml:"pose,omitempty"`
	Truncated         int       `xml:"truncated"`
	Difficult         int       `xml:"difficult"`
	BndBox            VOCBndBox `xml:"bndbox"`
	Color             string    `xml:"color,omitempty"`
	Alphanumeric      string    `xml:"alphanumeric,omitempty"`
	AlphanumericColor string    `xml:"alphanumeric_color,omitempty"`
}

// VOCBndBox is a box in pixel coordinates. Fractional values written by some tools are rounded.
type VOCBndBox struct {
	XMin float64 `xml:"xmin"`
	YMin float64 `xml:"ymin"`
	XMax float64 `xml:"xmax"`
	YMax float64 `xml:"ymax"`
}

// VOCSource yields one sample per annotation file of a directory.
type VOCSource struct {
	files     []string
	imagesDir string
	next      int
	logger    logging.Logger
}

// NewVOCSource lists the .xml files of annotationsDir. Images are looked up by filename in
// imagesDir, or next to the annotations when imagesDir is empty.
func NewVOCSource(annotationsDir, imagesDir string, logger logging.Logger) (*VOCSource, error) {
	entries, err := os.ReadDir(annotationsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading annotation directory %s", annotationsDir)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			files = append(files, filepath.Join(annotationsDir, e.Name()))
		}
	}
	sort.Strings(files)
	if imagesDir == "" {
		imagesDir = annotationsDir
	}
	logger.Infow("found annotations", "dir", annotationsDir, "count", len(files))
	return &VOCSource{files: files, imagesDir: imagesDir, logger: logger}, nil
}

// Next returns the sample of the next annotation file, or io.EOF. An annotation that cannot be
// parsed, or whose recorded size disagrees with its image, returns an error wrapping
// dataset.ErrMalformed; reading may continue after it.
func (s *VOCSource) Next(ctx context.Context) (*dataset.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++

	ann, err := ReadVOC(path)
	if err != nil {
		return nil, err
	}
	imgPath := filepath.Join(s.imagesDir, ann.Filename)
	img, err := loadImage(imgPath)
	if err != nil {
		return nil, err
	}
	if (ann.Size.Width != 0 && ann.Size.Width != img.width) || (ann.Size.Height != 0 && ann.Size.Height != img.height) {
		return nil, errors.Wrapf(dataset.ErrMalformed, "%s records size %dx%d but %s is %dx%d",
			path, ann.Size.Width, ann.Size.Height, imgPath, img.width, img.height)
	}
	sample := &dataset.Sample{
		ID:       sampleID(imgPath),
		Filename: ann.Filename,
		Format:   img.format,
		Width:    img.width,
		Height:   img.height,
		Image:    img.data,
	}
	for _, o := range ann.Objects {
		r := dataset.Region{
			Label:             parseLabel(o.Name),
			ShapeColor:        parseColor(o.Color),
			Alphanumeric:      parseAlphanumeric(o.Alphanumeric),
			AlphanumericColor: parseColor(o.AlphanumericColor),
		}
		r.Box.Min.X, r.Box.Min.Y = roundCoord(o.BndBox.XMin), roundCoord(o.BndBox.YMin)
		r.Box.Max.X, r.Box.Max.Y = roundCoord(o.BndBox.XMax), roundCoord(o.BndBox.YMax)
		sample.Regions = append(sample.Regions, r)
	}
	s.logger.Debugw("read annotation", "file", path, "regions", len(sample.Regions))
	return sample, nil
}

// ReadVOC parses the annotation file at path.
func ReadVOC(path string) (*VOCAnnotation, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var ann VOCAnnotation
	if err := xml.Unmarshal(data, &ann); err != nil {
		return nil, errors.Wrapf(dataset.ErrMalformed, "%s: %v", path, err)
	}
	if err := dataset.CheckFilename(ann.Filename); err != nil {
		return nil, errors.Wrapf(dataset.ErrMalformed, "%s: %v", path, err)
	}
	return &ann, nil
}

// WriteVOC writes the annotation of sample to path.
func WriteVOC(path string, sample *dataset.Sample) error {
	ann := VOCAnnotation{
		Filename: sample.Filename,
		Size:     VOCSize{Width: sample.Width, Height: sample.Height, Depth: 3},
	}
	for _, r := range sample.Regions {
		ann.Objects = append(ann.Objects, VOCObject{
			Name: string(r.Label),
			Pose: "Unspecified",
			BndBox: VOCBndBox{
				XMin: float64(r.Box.Min.X), YMin: float64(r.Box.Min.Y),
				XMax: float64(r.Box.Max.X), YMax: float64(r.Box.Max.Y),
			},
			Color:             string(r.ShapeColor),
			Alphanumeric:      string(r.Alphanumeric),
			AlphanumericColor: string(r.AlphanumericColor),
		})
	}
	out, err := xml.MarshalIndent(ann, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, append(out, '\n'), 0o640), "writing %s", path)
}
