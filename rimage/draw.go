package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	font     *truetype.Font
	boldFont *truetype.Font
)

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
	boldFont, err = truetype.Parse(gobold.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for annotations.
func Font() *truetype.Font {
	return font
}

// BoldFont returns the font target alphanumerics are painted with.
func BoldFont() *truetype.Font {
	return boldFont
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// DrawStringCentered paints text in bold centered on (x, y), rotated by angle radians about that
// point.
func DrawStringCentered(dc *gg.Context, text string, x, y, angle float64, c color.Color, size float64) {
	dc.Push()
	defer dc.Pop()
	dc.SetFontFace(truetype.NewFace(BoldFont(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.RotateAbout(angle, x, y)
	dc.DrawStringAnchored(text, x, y, 0.5, 0.35)
}

// DrawRectangleEmpty draws the outline of the given rectangle into the context.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// Box is a labeled rectangle to overlay on an image.
type Box struct {
	Rect  image.Rectangle
	Label string
	Color color.Color
}

// DrawBoxes returns a copy of img with every box outlined and its label written above it.
func DrawBoxes(img image.Image, boxes []Box) image.Image {
	dc := gg.NewContextForImage(img)
	for _, b := range boxes {
		c := b.Color
		if c == nil {
			c = color.RGBA{R: 0xff, A: 0xff}
		}
		DrawRectangleEmpty(dc, b.Rect, c, 2)
		if b.Label == "" {
			continue
		}
		y := b.Rect.Min.Y - 14
		if y < 0 {
			y = b.Rect.Max.Y + 2
		}
		DrawString(dc, b.Label, image.Point{b.Rect.Min.X, y}, c, 12)
	}
	return dc.Image()
}
