package rimage

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/suas-odlc/odlc/target"
)

func TestOutline(t *testing.T) {
	for _, shape := range target.Shapes() {
		t.Run(string(shape), func(t *testing.T) {
			pts, err := Outline(shape, 50, 0)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(pts), test.ShouldBeGreaterThanOrEqualTo, 3)
			size := r2.RectFromPoints(pts...).Size()
			test.That(t, math.Max(size.X, size.Y), test.ShouldAlmostEqual, 50, 1e-9)

			rotated, err := Outline(shape, 50, math.Pi/3)
			test.That(t, err, test.ShouldBeNil)
			for i := range pts {
				test.That(t, rotated[i].Norm(), test.ShouldAlmostEqual, pts[i].Norm(), 1e-9)
			}
		})
	}
	_, err := Outline("blob", 10, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRenderTarget(t *testing.T) {
	style := TargetStyle{
		Spec:              target.Spec{Shape: target.Square, Alphanumeric: "A"},
		Size:              40,
		ShapeColor:        target.Red.RGBA(),
		AlphanumericColor: target.White.RGBA(),
	}
	img, err := RenderTarget(style)
	test.That(t, err, test.ShouldBeNil)
	box := AlphaBounds(img)
	test.That(t, box.Empty(), test.ShouldBeFalse)
	test.That(t, box.In(img.Bounds()), test.ShouldBeTrue)
	test.That(t, box.Dx(), test.ShouldBeBetweenOrEqual, 40, 42)
	test.That(t, box.Dy(), test.ShouldBeBetweenOrEqual, 40, 42)

	// center pixel is covered by the letter or the shape, corners stay transparent
	_, _, _, a := img.At(img.Bounds().Dx()/2, img.Bounds().Dy()/2).RGBA()
	test.That(t, a, test.ShouldEqual, uint32(0xffff))
	_, _, _, a = img.At(0, 0).RGBA()
	test.That(t, a, test.ShouldEqual, uint32(0))

	style.Angle = math.Pi / 4
	img, err = RenderTarget(style)
	test.That(t, err, test.ShouldBeNil)
	box = AlphaBounds(img)
	test.That(t, box.In(img.Bounds()), test.ShouldBeTrue)
	test.That(t, box.Dx(), test.ShouldBeGreaterThan, 50)

	style.Size = 2
	_, err = RenderTarget(style)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAlphaBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	test.That(t, AlphaBounds(img).Empty(), test.ShouldBeTrue)
	img.Set(2, 3, color.RGBA{A: 10})
	img.Set(6, 4, color.RGBA{A: 255})
	test.That(t, AlphaBounds(img), test.ShouldResemble, image.Rect(2, 3, 7, 5))
}

func TestEncodeDecode(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 8))
	img.Set(3, 3, color.NRGBA{R: 255, A: 255})

	data, err := Encode(img, FormatPNG, 0)
	test.That(t, err, test.ShouldBeNil)
	back, err := Decode(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Bounds(), test.ShouldResemble, img.Bounds())
	r, _, _, _ := back.At(3, 3).RGBA()
	test.That(t, r, test.ShouldEqual, uint32(0xffff))

	data, err = Encode(img, FormatJPEG, 90)
	test.That(t, err, test.ShouldBeNil)
	back, err = Decode(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Bounds(), test.ShouldResemble, img.Bounds())

	_, err = Encode(img, "gif", 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Decode([]byte("nope"))
	test.That(t, err, test.ShouldNotBeNil)

	f, err := ParseFormat("JPG")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, FormatJPEG)
	test.That(t, f.Extension(), test.ShouldEqual, ".jpg")
	_, err = ParseFormat("bmp")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBackgrounds(t *testing.T) {
	dir := t.TempDir()
	_, err := ListBackgrounds(dir)
	test.That(t, err, test.ShouldNotBeNil)

	rng := rand.New(rand.NewSource(1))
	noise := NoiseBackground(rng, 64, 48)
	test.That(t, noise.Bounds(), test.ShouldResemble, image.Rect(0, 0, 64, 48))
	again := NoiseBackground(rand.New(rand.NewSource(1)), 64, 48)
	test.That(t, again.Pix, test.ShouldResemble, noise.Pix)

	data, err := Encode(noise, FormatPNG, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, "field.png"), data, 0o600), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600), test.ShouldBeNil)

	files, err := ListBackgrounds(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldResemble, []string{filepath.Join(dir, "field.png")})

	bg, err := LoadBackground(files[0])
	test.That(t, err, test.ShouldBeNil)
	crop := RandomCrop(rng, bg, 32, 16)
	test.That(t, crop.Bounds().Dx(), test.ShouldEqual, 32)
	test.That(t, crop.Bounds().Dy(), test.ShouldEqual, 16)
	up := RandomCrop(rng, bg, 128, 128)
	test.That(t, up.Bounds().Dx(), test.ShouldEqual, 128)

	test.That(t, Resize(bg, 32, 24).Bounds().Dx(), test.ShouldEqual, 32)
}

func TestDrawBoxes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	out := DrawBoxes(img, []Box{{Rect: image.Rect(20, 30, 60, 70), Label: "star"}})
	r, _, _, a := out.At(20, 50).RGBA()
	test.That(t, a, test.ShouldBeGreaterThan, 0)
	test.That(t, r, test.ShouldBeGreaterThan, 0)
	_, _, _, a = out.At(40, 50).RGBA()
	test.That(t, a, test.ShouldEqual, uint32(0))
}

func TestJitter(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	base := target.Blue.Colorful()
	for i := 0; i < 20; i++ {
		c := Jitter(rng, base, 5, 0.05)
		test.That(t, c.IsValid(), test.ShouldBeTrue)
		test.That(t, target.Closest(c), test.ShouldEqual, target.Blue)
	}
}
