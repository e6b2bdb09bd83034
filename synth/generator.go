// Package synth composes synthetic training images: taxonomy targets painted onto aerial-looking
// backgrounds, labeled with the tight box of each painted target.
package synth

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/logging"
	"github.com/suas-odlc/odlc/rimage"
	"github.com/suas-odlc/odlc/target"
)

// placement keeps this many pixels between targets.
const placementPadding = 2

// Generator produces an endless, seeded stream of synthetic samples.
type Generator struct {
	cfg         Config
	format      rimage.Format
	rng         *rand.Rand
	backgrounds []string
	cache       map[string]image.Image
	shapes      []target.Shape
	count       int
	logger      logging.Logger
}

// NewGenerator validates cfg and returns a generator seeded with cfg.Seed.
func NewGenerator(cfg Config, logger logging.Logger) (*Generator, error) {
	if err := cfg.Validate("synth"); err != nil {
		return nil, err
	}
	format, err := rimage.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	g := &Generator{
		cfg:    cfg,
		format: format,
		//nolint:gosec
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cache:  map[string]image.Image{},
		shapes: cfg.Shapes,
		logger: logger,
	}
	if len(g.shapes) == 0 {
		g.shapes = target.Shapes()
	}
	if cfg.Backgrounds != "" {
		if g.backgrounds, err = rimage.ListBackgrounds(cfg.Backgrounds); err != nil {
			return nil, err
		}
		logger.Infow("using background images", "dir", cfg.Backgrounds, "count", len(g.backgrounds))
	}
	return g, nil
}

// Next composes the next sample. It only fails when ctx is done or a background cannot be read;
// the stream itself never ends.
func (g *Generator) Next(ctx context.Context) (*dataset.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	canvas, err := g.background()
	if err != nil {
		return nil, err
	}
	n := g.cfg.MinTargets + g.rng.Intn(g.cfg.MaxTargets-g.cfg.MinTargets+1)
	var regions []dataset.Region
	for i := 0; i < n; i++ {
		spec := g.randomSpec()
		region, ok, err := g.place(canvas, spec, regions)
		if err != nil {
			return nil, err
		}
		if !ok {
			g.logger.Debugw("dropping target that could not be placed", "shape", spec.Shape, "sample", g.count)
			continue
		}
		regions = append(regions, region)
	}
	return g.finish(canvas, regions)
}

// Render composes a sample holding a single target described by spec, centered on a background.
// Unset colors and alphanumeric are chosen at random.
func (g *Generator) Render(spec target.Spec) (*dataset.Sample, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	g.fillSpec(&spec)
	canvas, err := g.background()
	if err != nil {
		return nil, err
	}
	overlay, tight, err := g.paint(spec)
	if err != nil {
		return nil, err
	}
	center := canvas.Bounds().Size().Div(2)
	at := center.Sub(tight.Size().Div(2))
	region := g.composite(canvas, overlay, tight, at, spec)
	return g.finish(canvas, []dataset.Region{region})
}

func (g *Generator) randomSpec() target.Spec {
	spec := target.Spec{Shape: g.shapes[g.rng.Intn(len(g.shapes))]}
	g.fillSpec(&spec)
	return spec
}

func (g *Generator) fillSpec(spec *target.Spec) {
	if spec.ShapeColor == "" {
		colors := target.Colors()
		spec.ShapeColor = colors[g.rng.Intn(len(colors))]
	}
	if spec.Alphanumeric == "" {
		all := target.Alphanumerics()
		spec.Alphanumeric = all[g.rng.Intn(len(all))]
	}
	if spec.AlphanumericColor == "" {
		spec.AlphanumericColor = g.contrastingColor(spec.ShapeColor)
	}
}

func (g *Generator) contrastingColor(c target.Color) target.Color {
	options := c.Contrasting(g.cfg.MinContrast)
	if len(options) > 0 {
		return options[g.rng.Intn(len(options))]
	}
	ref := c.Colorful()
	if ref.DistanceLab(target.White.Colorful()) > ref.DistanceLab(target.Black.Colorful()) {
		return target.White
	}
	return target.Black
}

// paint renders spec with random size, rotation and color jitter and returns the overlay with
// the tight bounds of its painted pixels.
func (g *Generator) paint(spec target.Spec) (*image.RGBA, image.Rectangle, error) {
	size := g.cfg.MinTargetSize + g.rng.Float64()*(g.cfg.MaxTargetSize-g.cfg.MinTargetSize)
	style := rimage.TargetStyle{
		Spec:              spec,
		Size:              size,
		Angle:             g.rng.Float64() * 2 * math.Pi,
		ShapeColor:        rimage.ToRGBA(rimage.Jitter(g.rng, spec.ShapeColor.Colorful(), 6, 0.06)),
		AlphanumericColor: rimage.ToRGBA(rimage.Jitter(g.rng, spec.AlphanumericColor.Colorful(), 6, 0.06)),
	}
	overlay, err := rimage.RenderTarget(style)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	tight := rimage.AlphaBounds(overlay)
	if tight.Empty() {
		return nil, image.Rectangle{}, errors.Errorf("rendered %s target is empty", spec.Shape)
	}
	return overlay, tight, nil
}

// place paints spec at a random position that does not overlap any placed region. It reports
// false when no position was found within the configured attempts.
func (g *Generator) place(canvas draw.Image, spec target.Spec, placed []dataset.Region) (dataset.Region, bool, error) {
	overlay, tight, err := g.paint(spec)
	if err != nil {
		return dataset.Region{}, false, err
	}
	bounds := canvas.Bounds()
	if tight.Dx() > bounds.Dx() || tight.Dy() > bounds.Dy() {
		return dataset.Region{}, false, nil
	}
	for attempt := 0; attempt < g.cfg.MaxPlacementAttempts; attempt++ {
		at := image.Pt(
			g.rng.Intn(bounds.Dx()-tight.Dx()+1),
			g.rng.Intn(bounds.Dy()-tight.Dy()+1),
		)
		box := image.Rectangle{Min: at, Max: at.Add(tight.Size())}
		if overlapsAny(box, placed) {
			continue
		}
		return g.composite(canvas, overlay, tight, at, spec), true, nil
	}
	return dataset.Region{}, false, nil
}

func overlapsAny(box image.Rectangle, placed []dataset.Region) bool {
	padded := box.Inset(-placementPadding)
	for _, r := range placed {
		if padded.Overlaps(r.Box) {
			return true
		}
	}
	return false
}

// composite paints the tight part of overlay with its top left corner at at and returns the
// labeled region, clipped to the canvas.
func (g *Generator) composite(
	canvas draw.Image, overlay *image.RGBA, tight image.Rectangle, at image.Point, spec target.Spec,
) dataset.Region {
	rimage.Composite(canvas, overlay.SubImage(tight), at)
	box := image.Rectangle{Min: at, Max: at.Add(tight.Size())}.Intersect(canvas.Bounds())
	return dataset.Region{
		Label:             spec.Shape,
		Box:               box,
		ShapeColor:        spec.ShapeColor,
		Alphanumeric:      spec.Alphanumeric,
		AlphanumericColor: spec.AlphanumericColor,
	}
}

func (g *Generator) background() (*image.NRGBA, error) {
	w, h := g.cfg.Width, g.cfg.Height
	if len(g.backgrounds) == 0 {
		return rimage.NoiseBackground(g.rng, w, h), nil
	}
	path := g.backgrounds[g.rng.Intn(len(g.backgrounds))]
	img, ok := g.cache[path]
	if !ok {
		var err error
		if img, err = rimage.LoadBackground(path); err != nil {
			return nil, err
		}
		g.cache[path] = img
	}
	return rimage.RandomCrop(g.rng, img, w, h), nil
}

// finish blurs, resizes and encodes canvas into a sample.
func (g *Generator) finish(canvas *image.NRGBA, regions []dataset.Region) (*dataset.Sample, error) {
	var out image.Image = canvas
	if g.cfg.MaxBlur > 0 {
		out = rimage.Blur(out, g.rng.Float64()*g.cfg.MaxBlur)
	}
	if g.cfg.OutputWidth > 0 {
		sx := float64(g.cfg.OutputWidth) / float64(g.cfg.Width)
		sy := float64(g.cfg.OutputHeight) / float64(g.cfg.Height)
		out = rimage.Resize(out, g.cfg.OutputWidth, g.cfg.OutputHeight)
		for i := range regions {
			regions[i].Box = scaleBox(regions[i].Box, sx, sy).Intersect(out.Bounds())
		}
	}
	data, err := rimage.Encode(out, g.format, g.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return nil, errors.Wrap(err, "generating sample id")
	}
	format := dataset.FormatJPEG
	if g.format == rimage.FormatPNG {
		format = dataset.FormatPNG
	}
	g.count++
	return &dataset.Sample{
		ID:       id.String(),
		Filename: fmt.Sprintf("synth_%06d%s", g.count, g.format.Extension()),
		Format:   format,
		Width:    out.Bounds().Dx(),
		Height:   out.Bounds().Dy(),
		Image:    data,
		Regions:  regions,
	}, nil
}

func scaleBox(r image.Rectangle, sx, sy float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(float64(r.Min.X)*sx)),
		int(math.Floor(float64(r.Min.Y)*sy)),
		int(math.Ceil(float64(r.Max.X)*sx)),
		int(math.Ceil(float64(r.Max.Y)*sy)),
	)
}
