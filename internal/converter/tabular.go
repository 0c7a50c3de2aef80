package converter

import (
	"context"
	"os"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// Tabular converts between csv, json and yaml record sets.
type Tabular struct {
	logger  *logger.Logger
	formats formatSet
}

func NewTabular(log *logger.Logger) *Tabular {
	return &Tabular{logger: log.Named("tabular"), formats: newFormatSet("csv", "json", "yaml")}
}

func (c *Tabular) Name() string { return "tabular" }

func (c *Tabular) InputFormats() []string { return c.formats.sorted() }

func (c *Tabular) OutputFormats() []string { return c.formats.sorted() }

func (c *Tabular) CompatibleWith(format string) []string {
	if !c.formats.has(format) {
		return nil
	}
	return c.formats.without(format)
}

func (c *Tabular) Available() bool { return true }

func (c *Tabular) Convert(ctx context.Context, job Job) ([]string, error) {
	if err := check(c, job); err != nil {
		return nil, err
	}

	src, err := os.Open(job.InputPath)
	if err != nil {
		return nil, failed(c.Name(), err)
	}
	defer src.Close()

	var t *table
	if Normalize(job.InputFormat) == "csv" {
		t, err = readCSV(src)
	} else {
		t, err = readRecords(src)
	}
	if err != nil {
		return nil, failed(c.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := outputPath(job)
	format := Normalize(job.OutputFormat)
	if err := writeFile(out, func(f *os.File) error { return t.write(f, format) }); err != nil {
		return nil, failed(c.Name(), err)
	}

	c.logger.Debug("table converted", zap.Int("rows", len(t.rows)), zap.Int("columns", len(t.header)))
	return []string{out}, nil
}
