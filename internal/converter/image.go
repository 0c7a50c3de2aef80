package converter

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image re-encodes raster images in process. webp can be decoded but not
// encoded, and svg is rasterized at its viewBox size, so both are input only.
type Image struct {
	quality int
	logger  *logger.Logger
	inputs  formatSet
	outputs formatSet
}

func NewImage(cfg *Config, log *logger.Logger) *Image {
	return &Image{
		quality: jpegQuality(cfg.Quality),
		logger:  log.Named("image"),
		inputs:  newFormatSet("png", "jpeg", "gif", "bmp", "tiff", "webp", "svg"),
		outputs: newFormatSet("png", "jpeg", "gif", "bmp", "tiff"),
	}
}

func jpegQuality(preset string) int {
	switch preset {
	case QualityHigh:
		return 95
	case QualityLow:
		return 70
	default:
		return 85
	}
}

func (c *Image) Name() string { return "image" }

func (c *Image) InputFormats() []string { return c.inputs.sorted() }

func (c *Image) OutputFormats() []string { return c.outputs.sorted() }

func (c *Image) CompatibleWith(format string) []string {
	if !c.inputs.has(format) {
		return nil
	}
	return c.outputs.without(format)
}

func (c *Image) Available() bool { return true }

func (c *Image) Convert(ctx context.Context, job Job) ([]string, error) {
	if err := check(c, job); err != nil {
		return nil, err
	}

	src, err := os.Open(job.InputPath)
	if err != nil {
		return nil, failed(c.Name(), err)
	}
	defer src.Close()

	img, decoded, err := decode(src, Normalize(job.InputFormat))
	if err != nil {
		return nil, failed(c.Name(), fmt.Errorf("decode: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := Normalize(job.OutputFormat)
	out := outputPath(job)
	err = writeFile(out, func(f *os.File) error {
		return c.encode(f, img, format)
	})
	if err != nil {
		return nil, failed(c.Name(), fmt.Errorf("encode %s: %w", format, err))
	}

	c.logger.Debug("image converted",
		zap.String("from", decoded),
		zap.String("to", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
	)
	return []string{out}, nil
}

func decode(r io.Reader, format string) (image.Image, string, error) {
	if format != "svg" {
		return image.Decode(r)
	}
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, "", err
	}
	w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		return nil, "", fmt.Errorf("svg has no usable viewBox (%dx%d)", w, h)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	icon.Draw(rasterx.NewDasher(w, h, rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())), 1)
	return rgba, "svg", nil
}

func (c *Image) encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg":
		return jpeg.Encode(w, flatten(img), &jpeg.Options{Quality: c.quality})
	case "gif":
		return gif.Encode(w, img, &gif.Options{NumColors: 256})
	case "bmp":
		return bmp.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: image output %s", ErrUnsupportedPair, format)
}

// flatten composites img over white, since jpeg has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
