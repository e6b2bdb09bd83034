// Package rimage paints targets, loads and synthesizes backgrounds and encodes the images that end
// up in record files.
package rimage

import (
	"bytes"
	"image"
	"image/draw"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi" // register qoi
)

// Format names an encoding for generated images.
type Format string

// Supported output encodings.
const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat accepts "jpeg", "jpg" or "png".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", errors.Errorf("unsupported image format %q", s)
	}
}

// Extension returns the file extension of f including the dot.
func (f Format) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Encode encodes img. Quality only applies to jpeg.
func Encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		return nil, errors.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s", format)
	}
	return buf.Bytes(), nil
}

// Decode decodes any registered image format, including ppm and qoi.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}
	return img, nil
}

var backgroundExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".ppm": true, ".qoi": true,
}

// ListBackgrounds returns the image files directly inside dir, sorted by name.
func ListBackgrounds(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading background directory %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !backgroundExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil, errors.Errorf("no background images in %s", dir)
	}
	return out, nil
}

// LoadBackground opens the image at path honoring its EXIF orientation.
func LoadBackground(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "opening background %s", path)
	}
	return img, nil
}

// RandomCrop returns a width x height window of img at a random position. Images smaller than
// the window are first scaled up to cover it.
func RandomCrop(rng *rand.Rand, img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() < width || b.Dy() < height {
		return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
	}
	x := b.Min.X + rng.Intn(b.Dx()-width+1)
	y := b.Min.Y + rng.Intn(b.Dy()-height+1)
	return imaging.Crop(img, image.Rect(x, y, x+width, y+height))
}

// Composite paints overlay onto dst with its top left corner at p.
func Composite(dst draw.Image, overlay image.Image, p image.Point) {
	r := overlay.Bounds().Sub(overlay.Bounds().Min).Add(p)
	draw.Draw(dst, r, overlay, overlay.Bounds().Min, draw.Over)
}

// Blur applies a gaussian blur with the given sigma. Sigma <= 0 returns a copy of img.
func Blur(img image.Image, sigma float64) *image.NRGBA {
	if sigma <= 0 {
		return imaging.Clone(img)
	}
	return imaging.Blur(img, sigma)
}

// Resize scales img to width x height with bilinear interpolation.
func Resize(img image.Image, width, height int) *image.NRGBA {
	return imaging.Clone(resize.Resize(uint(width), uint(height), img, resize.Bilinear))
}
