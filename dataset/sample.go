// Package dataset holds labeled samples, their conversion to and from tf.train.Example records,
// split partitioning and the on-disk layout of a generated dataset.
package dataset

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/suas-odlc/odlc/target"
)

// ErrMalformed is wrapped by every sample validation failure.
var ErrMalformed = errors.New("malformed sample")

// Image formats understood by the training pipeline.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// Region is one annotated target in an image. Box is in pixels, half-open like image.Rectangle.
type Region struct {
	Label             target.Shape        `json:"label"`
	Box               image.Rectangle     `json:"box"`
	ShapeColor        target.Color        `json:"shape_color,omitempty"`
	Alphanumeric      target.Alphanumeric `json:"alphanumeric,omitempty"`
	AlphanumericColor target.Color        `json:"alphanumeric_color,omitempty"`
}

// NormalizedBox is a bounding box with coordinates as ratios of the image size.
type NormalizedBox struct {
	XMin, YMin, XMax, YMax float64
}

// Normalized returns the box of r relative to an image of the given size.
func (r Region) Normalized(width, height int) NormalizedBox {
	w, h := float64(width), float64(height)
	return NormalizedBox{
		XMin: float64(r.Box.Min.X) / w,
		YMin: float64(r.Box.Min.Y) / h,
		XMax: float64(r.Box.Max.X) / w,
		YMax: float64(r.Box.Max.Y) / h,
	}
}

// Spec returns the target description of r.
func (r Region) Spec() target.Spec {
	return target.Spec{
		Shape:             r.Label,
		ShapeColor:        r.ShapeColor,
		Alphanumeric:      r.Alphanumeric,
		AlphanumericColor: r.AlphanumericColor,
	}
}

// Sample is a labeled image: the encoded image plus its annotated regions. A sample is not
// modified once it has been serialized.
type Sample struct {
	ID       string
	Filename string
	Format   string
	Width    int
	Height   int
	Image    []byte
	Regions  []Region
}

// Bounds returns the pixel rectangle of the image.
func (s *Sample) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

func malformed(format string, args ...interface{}) error {
	return errors.Wrap(ErrMalformed, fmt.Sprintf(format, args...))
}

// CheckFilename reports whether name is a single path element that can be joined to an output
// directory without leaving it.
func CheckFilename(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return errors.Errorf("filename %q is not a plain file name", name)
	}
	return nil
}

// Validate checks the sample can be emitted: a plain filename, positive dimensions, an encoded
// image of a known format, at least one region, every label in the taxonomy and every box
// non-empty and fully inside the image.
func (s *Sample) Validate() error {
	if err := CheckFilename(s.Filename); err != nil {
		return malformed("sample %q: %v", s.ID, err)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return malformed("sample %q has invalid size %dx%d", s.ID, s.Width, s.Height)
	}
	if len(s.Image) == 0 {
		return malformed("sample %q has no image data", s.ID)
	}
	if s.Format != FormatJPEG && s.Format != FormatPNG {
		return malformed("sample %q has unsupported format %q", s.ID, s.Format)
	}
	if len(s.Regions) == 0 {
		return malformed("sample %q has no regions", s.ID)
	}
	bounds := s.Bounds()
	for i, r := range s.Regions {
		if err := r.Spec().Validate(); err != nil {
			return malformed("sample %q region %d: %v", s.ID, i, err)
		}
		if r.Box.Empty() {
			return malformed("sample %q region %d has empty box %v", s.ID, i, r.Box)
		}
		if !r.Box.In(bounds) {
			return malformed("sample %q region %d box %v outside image %v", s.ID, i, r.Box, bounds)
		}
	}
	return nil
}

// Names hands out distinct file names for samples written into one directory. The zero value
// is not usable; use NewNames.
type Names struct {
	taken map[string]bool
}

// NewNames returns an empty set of names.
func NewNames() *Names {
	return &Names{taken: map[string]bool{}}
}

// Claim returns the name to write s under. When ext is not empty it replaces the extension of
// the filename. A name already handed out gets a numeric suffix.
func (n *Names) Claim(s *Sample, ext string) (string, error) {
	if err := CheckFilename(s.Filename); err != nil {
		return "", errors.Wrapf(err, "sample %q", s.ID)
	}
	stem := strings.TrimSuffix(s.Filename, filepath.Ext(s.Filename))
	if ext == "" {
		ext = filepath.Ext(s.Filename)
	}
	name := stem + ext
	for i := 1; n.taken[name]; i++ {
		name = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	n.taken[name] = true
	return name, nil
}
