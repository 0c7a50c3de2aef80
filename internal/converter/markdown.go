package converter

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Markdown renders GitHub-flavored markdown to a standalone HTML page.
type Markdown struct {
	md goldmark.Markdown
}

func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithXHTML()),
		),
	}
}

func (c *Markdown) Name() string { return "markdown" }

func (c *Markdown) InputFormats() []string { return []string{"md"} }

func (c *Markdown) OutputFormats() []string { return []string{"html"} }

func (c *Markdown) CompatibleWith(format string) []string {
	if Normalize(format) != "md" {
		return nil
	}
	return []string{"html"}
}

func (c *Markdown) Available() bool { return true }

func (c *Markdown) Convert(ctx context.Context, job Job) ([]string, error) {
	if err := check(c, job); err != nil {
		return nil, err
	}

	src, err := os.ReadFile(job.InputPath)
	if err != nil {
		return nil, failed(c.Name(), err)
	}

	var body strings.Builder
	if err := c.md.Convert(src, &body); err != nil {
		return nil, failed(c.Name(), fmt.Errorf("render: %w", err))
	}

	out := outputPath(job)
	title := strings.TrimSuffix(filepath.Base(job.InputPath), filepath.Ext(job.InputPath))
	err = writeFile(out, func(f *os.File) error {
		_, err := fmt.Fprint(f, htmlPage(title, body.String()))
		return err
	})
	if err != nil {
		return nil, failed(c.Name(), err)
	}
	return []string{out}, nil
}

func htmlPage(title, body string) string {
	return "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>" +
		html.EscapeString(title) + "</title>\n</head>\n<body>\n" + body + "</body>\n</html>\n"
}
