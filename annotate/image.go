// Package annotate imports manually annotated imagery, Pascal VOC directories or JSON Lines
// exports, as dataset samples.
package annotate

import (
	"bytes"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/rimage"
	"github.com/suas-odlc/odlc/target"
)

type loadedImage struct {
	data          []byte
	format        string
	width, height int
}

// loadImage reads the image at path. Jpeg and png bytes are kept as is; any other registered
// format is re-encoded as png.
func loadImage(path string) (loadedImage, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return loadedImage{}, errors.Wrapf(err, "reading image %s", path)
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return loadedImage{}, errors.Wrapf(dataset.ErrMalformed, "image %s: %v", path, err)
	}
	switch name {
	case dataset.FormatJPEG, dataset.FormatPNG:
		return loadedImage{data: data, format: name, width: cfg.Width, height: cfg.Height}, nil
	}
	img, err := rimage.Decode(data)
	if err != nil {
		return loadedImage{}, errors.Wrapf(dataset.ErrMalformed, "image %s: %v", path, err)
	}
	if data, err = rimage.Encode(img, rimage.FormatPNG, 0); err != nil {
		return loadedImage{}, err
	}
	return loadedImage{data: data, format: dataset.FormatPNG, width: cfg.Width, height: cfg.Height}, nil
}

// sampleID derives a stable id from the image path.
func sampleID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

// parseLabel maps an annotation label onto the taxonomy. Unknown labels are kept verbatim so the
// sample fails validation.
func parseLabel(label string) target.Shape {
	if s, err := target.ParseShape(label); err == nil {
		return s
	}
	return target.Shape(label)
}

func parseColor(name string) target.Color {
	if name == "" {
		return ""
	}
	if c, err := target.ParseColor(name); err == nil {
		return c
	}
	return target.Color(name)
}

func parseAlphanumeric(s string) target.Alphanumeric {
	if s == "" {
		return ""
	}
	if a, err := target.ParseAlphanumeric(s); err == nil {
		return a
	}
	return target.Alphanumeric(s)
}

func roundCoord(v float64) int {
	return int(math.Round(v))
}
