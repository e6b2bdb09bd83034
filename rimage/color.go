package rimage

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/lucasb-eyer/go-colorful"
)

// Jitter perturbs c in HSV space: hue by up to hue degrees, saturation and value by up to sv.
// The result is clamped to valid RGB.
func Jitter(rng *rand.Rand, c colorful.Color, hue, sv float64) colorful.Color {
	h, s, v := c.Hsv()
	h = math.Mod(h+(rng.Float64()*2-1)*hue+360, 360)
	s = clamp01(s + (rng.Float64()*2-1)*sv)
	v = clamp01(v + (rng.Float64()*2-1)*sv)
	return colorful.Hsv(h, s, v).Clamped()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ToRGBA converts c to an opaque image color.
func ToRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// ground palettes for procedural backgrounds.
var groundPalettes = [][]string{
	{"#4a6b2f", "#5d7f38", "#6f8f45", "#3f5a27"}, // grass
	{"#5a5a5a", "#6b6b68", "#4d4d4b", "#77756f"}, // asphalt
	{"#8a7a5a", "#9c8c68", "#7a6a4c", "#a89a78"}, // dirt
}

// NoiseBackground synthesizes a ground-like texture: a random palette is sampled per cell, each
// pixel jittered, and the result blurred to soften the cells.
func NoiseBackground(rng *rand.Rand, width, height int) *image.NRGBA {
	palette := groundPalettes[rng.Intn(len(groundPalettes))]
	base := make([]colorful.Color, len(palette))
	for i, hex := range palette {
		c, err := colorful.Hex(hex)
		if err != nil {
			panic(err)
		}
		base[i] = c
	}

	const cell = 6
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	cols := (width + cell - 1) / cell
	cells := make([]colorful.Color, cols*((height+cell-1)/cell))
	for i := range cells {
		cells[i] = base[rng.Intn(len(base))]
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := cells[(y/cell)*cols+x/cell]
			l := (rng.Float64()*2 - 1) * 0.04
			r, g, b := c.R+l, c.G+l, c.B+l
			img.Set(x, y, ToRGBA(colorful.Color{R: r, G: g, B: b}))
		}
	}
	return Blur(img, 1.5)
}
