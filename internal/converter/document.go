package converter

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Document rasterizes or extracts paged documents through MuPDF. Image
// outputs produce one file per page.
type Document struct {
	dpi     float64
	quality int
	logger  *logger.Logger
	inputs  formatSet
	outputs formatSet
}

func NewDocument(cfg *Config, log *logger.Logger) *Document {
	dpi := cfg.DocumentDPI
	if dpi <= 0 {
		dpi = 150
	}
	return &Document{
		dpi:     dpi,
		quality: jpegQuality(cfg.Quality),
		logger:  log.Named("document"),
		inputs:  newFormatSet("pdf", "epub", "xps", "cbz", "fb2", "mobi"),
		outputs: newFormatSet("png", "jpeg", "txt", "html"),
	}
}

func (c *Document) Name() string { return "document" }

func (c *Document) InputFormats() []string { return c.inputs.sorted() }

func (c *Document) OutputFormats() []string { return c.outputs.sorted() }

func (c *Document) CompatibleWith(format string) []string {
	if !c.inputs.has(format) {
		return nil
	}
	return c.outputs.sorted()
}

func (c *Document) Available() bool { return true }

func (c *Document) Convert(ctx context.Context, job Job) ([]string, error) {
	if err := check(c, job); err != nil {
		return nil, err
	}

	doc, err := fitz.New(job.InputPath)
	if err != nil {
		return nil, failed(c.Name(), fmt.Errorf("open: %w", err))
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages == 0 {
		return nil, failed(c.Name(), fmt.Errorf("document has no pages"))
	}

	format := Normalize(job.OutputFormat)
	var outputs []string
	switch format {
	case "png", "jpeg":
		outputs, err = c.rasterize(ctx, doc, job, pages, format)
	case "txt":
		outputs, err = c.extractText(ctx, doc, job, pages)
	case "html":
		outputs, err = c.extractHTML(ctx, doc, job, pages)
	}
	if err != nil {
		for _, p := range outputs {
			os.Remove(p)
		}
		return nil, failed(c.Name(), err)
	}

	c.logger.Debug("document converted", zap.Int("pages", pages), zap.String("to", format))
	return outputs, nil
}

func (c *Document) rasterize(ctx context.Context, doc *fitz.Document, job Job, pages int, format string) ([]string, error) {
	outputs := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		img, err := doc.ImageDPI(i, c.dpi)
		if err != nil {
			return outputs, fmt.Errorf("render page %d: %w", i+1, err)
		}

		out := outputPath(job)
		if pages > 1 {
			out = outputPathN(job, i)
		}
		err = writeFile(out, func(f *os.File) error {
			if format == "jpeg" {
				return jpeg.Encode(f, flatten(img), &jpeg.Options{Quality: c.quality})
			}
			return png.Encode(f, img)
		})
		if err != nil {
			return outputs, fmt.Errorf("write page %d: %w", i+1, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (c *Document) extractText(ctx context.Context, doc *fitz.Document, job Job, pages int) ([]string, error) {
	var b strings.Builder
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			c.logger.Warn("skipping unreadable page", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	out := outputPath(job)
	if err := os.WriteFile(out, []byte(b.String()), 0o640); err != nil {
		return nil, err
	}
	return []string{out}, nil
}

func (c *Document) extractHTML(ctx context.Context, doc *fitz.Document, job Job, pages int) ([]string, error) {
	var b strings.Builder
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := doc.HTML(i, false)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		b.WriteString(page)
		b.WriteString("\n")
	}

	out := outputPath(job)
	title := strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
	if err := os.WriteFile(out, []byte(htmlPage(title, b.String())), 0o640); err != nil {
		return nil, err
	}
	return []string{out}, nil
}
