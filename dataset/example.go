package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	"math"

	"github.com/pkg/errors"

	"github.com/suas-odlc/odlc/target"
	"github.com/suas-odlc/odlc/tfrecord"
)

// Feature keys of the object detection tf.train.Example layout.
const (
	KeyHeight            = "image/height"
	KeyWidth             = "image/width"
	KeyFilename          = "image/filename"
	KeySourceID          = "image/source_id"
	KeySHA256            = "image/key/sha256"
	KeyEncoded           = "image/encoded"
	KeyFormat            = "image/format"
	KeyXMin              = "image/object/bbox/xmin"
	KeyXMax              = "image/object/bbox/xmax"
	KeyYMin              = "image/object/bbox/ymin"
	KeyYMax              = "image/object/bbox/ymax"
	KeyClassText         = "image/object/class/text"
	KeyClassLabel        = "image/object/class/label"
	KeyDifficult         = "image/object/difficult"
	KeyTruncated         = "image/object/truncated"
	KeyView              = "image/object/view"
	KeyColor             = "image/object/color/text"
	KeyAlphanumeric      = "image/object/alphanumeric/text"
	KeyAlphanumericColor = "image/object/alphanumeric_color/text"
)

const unspecifiedView = "Unspecified"

// ToExample converts a validated sample to a tf.train.Example.
func ToExample(s *Sample) (*tfrecord.Example, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	n := len(s.Regions)
	var (
		xmin, xmax, ymin, ymax = make([]float32, n), make([]float32, n), make([]float32, n), make([]float32, n)
		texts, colors          = make([]string, n), make([]string, n)
		alnums, alnumColors    = make([]string, n), make([]string, n)
		views                  = make([]string, n)
		labels                 = make([]int64, n)
		zeros                  = make([]int64, n)
	)
	for i, r := range s.Regions {
		nb := r.Normalized(s.Width, s.Height)
		xmin[i], xmax[i] = float32(nb.XMin), float32(nb.XMax)
		ymin[i], ymax[i] = float32(nb.YMin), float32(nb.YMax)
		texts[i] = string(r.Label)
		labels[i] = int64(r.Label.ID())
		colors[i] = string(r.ShapeColor)
		alnums[i] = string(r.Alphanumeric)
		alnumColors[i] = string(r.AlphanumericColor)
		views[i] = unspecifiedView
	}
	sum := sha256.Sum256(s.Image)

	e := tfrecord.NewExample()
	e.Set(KeyHeight, tfrecord.Int64Feature(int64(s.Height)))
	e.Set(KeyWidth, tfrecord.Int64Feature(int64(s.Width)))
	e.Set(KeyFilename, tfrecord.StringFeature(s.Filename))
	e.Set(KeySourceID, tfrecord.StringFeature(s.ID))
	e.Set(KeySHA256, tfrecord.StringFeature(hex.EncodeToString(sum[:])))
	e.Set(KeyEncoded, tfrecord.BytesFeature(s.Image))
	e.Set(KeyFormat, tfrecord.StringFeature(s.Format))
	e.Set(KeyXMin, tfrecord.FloatFeature(xmin...))
	e.Set(KeyXMax, tfrecord.FloatFeature(xmax...))
	e.Set(KeyYMin, tfrecord.FloatFeature(ymin...))
	e.Set(KeyYMax, tfrecord.FloatFeature(ymax...))
	e.Set(KeyClassText, tfrecord.StringFeature(texts...))
	e.Set(KeyClassLabel, tfrecord.Int64Feature(labels...))
	e.Set(KeyDifficult, tfrecord.Int64Feature(zeros...))
	e.Set(KeyTruncated, tfrecord.Int64Feature(zeros...))
	e.Set(KeyView, tfrecord.StringFeature(views...))
	e.Set(KeyColor, tfrecord.StringFeature(colors...))
	e.Set(KeyAlphanumeric, tfrecord.StringFeature(alnums...))
	e.Set(KeyAlphanumericColor, tfrecord.StringFeature(alnumColors...))
	return e, nil
}

// FromExample converts a tf.train.Example back to a sample. Pixel boxes are recovered by rounding
// the normalized coordinates. The attribute lists are optional; records written by other tools
// simply yield regions without attributes. The returned sample is validated.
func FromExample(e *tfrecord.Example) (*Sample, error) {
	height, err := e.Int64(KeyHeight)
	if err != nil {
		return nil, err
	}
	width, err := e.Int64(KeyWidth)
	if err != nil {
		return nil, err
	}
	s := &Sample{Width: int(width), Height: int(height)}
	if s.Filename, err = e.String(KeyFilename); err != nil {
		return nil, err
	}
	if s.ID, err = e.String(KeySourceID); err != nil {
		return nil, err
	}
	if s.Format, err = e.String(KeyFormat); err != nil {
		return nil, err
	}
	encoded, err := e.Bytes(KeyEncoded)
	if err != nil {
		return nil, err
	}
	if len(encoded) != 1 {
		return nil, errors.Errorf("expected a single encoded image, got %d", len(encoded))
	}
	s.Image = encoded[0]
	if want, err := e.String(KeySHA256); err == nil {
		sum := sha256.Sum256(s.Image)
		if hex.EncodeToString(sum[:]) != want {
			return nil, malformed("sample %q image does not match its sha256", s.ID)
		}
	}

	coords := make([][]float32, 4)
	for i, key := range []string{KeyXMin, KeyYMin, KeyXMax, KeyYMax} {
		if coords[i], err = e.Floats(key); err != nil {
			return nil, err
		}
	}
	texts, err := e.Strings(KeyClassText)
	if err != nil {
		return nil, err
	}
	n := len(texts)
	for i, c := range coords {
		if len(c) != n {
			return nil, malformed("sample %q has %d class texts but %d values for coordinate %d", s.ID, n, len(c), i)
		}
	}
	attrs := make([][]string, 3)
	for i, key := range []string{KeyColor, KeyAlphanumeric, KeyAlphanumericColor} {
		vals, err := e.Strings(key)
		if err != nil {
			vals = make([]string, n)
		}
		if len(vals) != n {
			return nil, malformed("sample %q has %d values for %s, expected %d", s.ID, len(vals), key, n)
		}
		attrs[i] = vals
	}

	s.Regions = make([]Region, n)
	for i := range texts {
		s.Regions[i] = Region{
			Label: target.Shape(texts[i]),
			Box: image.Rect(
				denormalize(coords[0][i], s.Width),
				denormalize(coords[1][i], s.Height),
				denormalize(coords[2][i], s.Width),
				denormalize(coords[3][i], s.Height),
			),
			ShapeColor:        target.Color(attrs[0][i]),
			Alphanumeric:      target.Alphanumeric(attrs[1][i]),
			AlphanumericColor: target.Color(attrs[2][i]),
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func denormalize(v float32, size int) int {
	return int(math.Round(float64(v) * float64(size)))
}
