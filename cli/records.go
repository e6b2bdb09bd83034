package cli

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/suas-odlc/odlc/annotate"
	"github.com/suas-odlc/odlc/dataset"
	"github.com/suas-odlc/odlc/rimage"
)

const (
	exportFormatVOC   = "voc"
	exportFormatJSONL = "jsonl"
)

var errEnoughSamples = errors.New("enough samples")

// InspectAction is the corresponding Action for 'inspect'. Every record is decoded, so checksum
// and format errors surface here.
func InspectAction(c *cli.Context) error {
	paths, err := recordPaths(c.Args().Slice())
	if err != nil {
		return err
	}
	stats := dataset.NewStats()
	files := table.NewWriter()
	files.SetStyle(table.StyleLight)
	files.AppendHeader(table.Row{"File", "Records", "Regions", "Size"})
	var total int64
	for _, p := range paths {
		records, regions := 0, 0
		if err := dataset.ReadRecordFile(p, func(s *dataset.Sample) error {
			records++
			regions += len(s.Regions)
			stats.Add(s)
			return nil
		}); err != nil {
			return err
		}
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		total += info.Size()
		files.AppendRow(table.Row{p, records, regions, units.HumanSize(float64(info.Size()))})
	}
	files.AppendFooter(table.Row{"total", stats.Samples, stats.Regions, units.HumanSize(float64(total))})
	printf(c.App.Writer, "%s", files.Render())
	printf(c.App.Writer, "%s", classTable(stats.PerClass))

	sizes := stats.BoxSizes()
	if len(sizes) == 0 {
		printf(c.App.Writer, "no boxes")
		return nil
	}
	sum, err := stats.BoxSummary()
	if err != nil {
		return err
	}
	printf(c.App.Writer, "box size (px): min %.1f  median %.1f  mean %.1f  p90 %.1f  max %.1f  stddev %.1f",
		sum.Min, sum.Median, sum.Mean, sum.P90, sum.Max, sum.StdDev)
	bins := int(math.Min(10, math.Max(1, math.Ceil(math.Sqrt(float64(len(sizes)))))))
	return histogram.Fprint(c.App.Writer, histogram.Hist(bins, sizes), histogram.Linear(40))
}

// PreviewAction is the corresponding Action for 'preview'. Images are drawn and written in
// parallel while records are still being read.
func PreviewAction(c *cli.Context) error {
	paths, err := recordPaths(c.Args().Slice())
	if err != nil {
		return err
	}
	out := c.Path(recordsFlagOut)
	if err := os.MkdirAll(out, 0o750); err != nil {
		return err
	}
	limit := c.Int(recordsFlagLimit)

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(runtime.NumCPU())
	names := dataset.NewNames()
	queued := 0
	read := func() error {
		for _, p := range paths {
			err := dataset.ReadRecordFile(p, func(s *dataset.Sample) error {
				if limit > 0 && queued >= limit {
					return errEnoughSamples
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				name, err := names.Claim(s, ".png")
				if err != nil {
					return err
				}
				queued++
				g.Go(func() error {
					return writePreview(filepath.Join(out, name), s)
				})
				return nil
			})
			if errors.Is(err, errEnoughSamples) {
				return nil
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
	readErr := read()
	if err := g.Wait(); err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	printf(c.App.Writer, "wrote %d previews to %s", queued, out)
	return nil
}

var previewColor = color.RGBA{R: 0xff, G: 0x00, B: 0xff, A: 0xff}

func writePreview(path string, s *dataset.Sample) error {
	img, err := rimage.Decode(s.Image)
	if err != nil {
		return errors.Wrapf(err, "decoding %s", s.Filename)
	}
	boxes := make([]rimage.Box, 0, len(s.Regions))
	for _, r := range s.Regions {
		label := string(r.Label)
		if r.Alphanumeric != "" {
			label += " " + string(r.Alphanumeric)
		}
		boxes = append(boxes, rimage.Box{Rect: r.Box, Label: label, Color: previewColor})
	}
	data, err := rimage.Encode(rimage.DrawBoxes(img, boxes), rimage.FormatPNG, 0)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

// ExportAction is the corresponding Action for 'export'.
func ExportAction(c *cli.Context) (err error) {
	format := c.String(recordsFlagFormat)
	if format != exportFormatVOC && format != exportFormatJSONL {
		return errors.Errorf("unknown export format %q, expected %s or %s", format, exportFormatVOC, exportFormatJSONL)
	}
	paths, err := recordPaths(c.Args().Slice())
	if err != nil {
		return err
	}
	samples, err := dataset.ReadSamples(paths...)
	if err != nil {
		return err
	}
	out := c.Path(recordsFlagOut)
	if err := os.MkdirAll(out, 0o750); err != nil {
		return err
	}

	// jsonl lines reference images stored next to the file; voc keeps images and annotations in
	// sibling directories.
	switch format {
	case exportFormatJSONL:
		path := filepath.Join(out, "dataset.jsonl")
		//nolint:gosec
		f, ferr := os.Create(path)
		if ferr != nil {
			return ferr
		}
		defer func() {
			err = multierr.Combine(err, f.Close())
		}()
		if err := annotate.WriteJSONL(f, out, samples); err != nil {
			return err
		}
	default:
		imagesDir, annDir := filepath.Join(out, "images"), filepath.Join(out, "annotations")
		for _, dir := range []string{imagesDir, annDir} {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return err
			}
		}
		// annotation names are claimed so that a.jpg and a.png do not share a.xml
		names := dataset.NewNames()
		for _, s := range samples {
			annName, err := names.Claim(s, ".xml")
			if err != nil {
				return err
			}
			renamed := *s
			renamed.Filename = strings.TrimSuffix(annName, ".xml") + filepath.Ext(s.Filename)
			if err := os.WriteFile(filepath.Join(imagesDir, renamed.Filename), s.Image, 0o640); err != nil {
				return err
			}
			if err := annotate.WriteVOC(filepath.Join(annDir, annName), &renamed); err != nil {
				return err
			}
		}
	}
	printf(c.App.Writer, "exported %d samples as %s to %s", len(samples), format, out)
	return nil
}
