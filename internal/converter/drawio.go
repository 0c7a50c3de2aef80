package converter

import (
	"context"
	"runtime"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
)

// drawioDefaults are the install locations of the desktop app per OS.
var drawioDefaults = map[string]string{
	"darwin":  "/Applications/draw.io.app/Contents/MacOS/draw.io",
	"linux":   "/opt/drawio/drawio",
	"windows": `C:\Program Files\draw.io\draw.io.exe`,
}

// Drawio exports diagrams through the draw.io CLI. It never writes drawio.
type Drawio struct {
	override string
	logger   *logger.Logger
	inputs   formatSet
	outputs  formatSet
}

func NewDrawio(cfg *Config, log *logger.Logger) *Drawio {
	return &Drawio{
		override: cfg.DrawioPath,
		logger:   log.Named("drawio"),
		inputs:   newFormatSet("drawio"),
		outputs:  newFormatSet("png", "pdf", "svg", "jpeg"),
	}
}

func (c *Drawio) Name() string { return "drawio" }

func (c *Drawio) InputFormats() []string { return c.inputs.sorted() }

func (c *Drawio) OutputFormats() []string { return c.outputs.sorted() }

func (c *Drawio) CompatibleWith(format string) []string {
	if !c.inputs.has(format) {
		return nil
	}
	return c.outputs.without("drawio")
}

func (c *Drawio) binary() (string, bool) {
	if c.override != "" {
		return resolveBinary(c.override)
	}
	return resolveBinary("drawio", "draw.io", drawioDefaults[runtime.GOOS])
}

func (c *Drawio) Available() bool {
	_, ok := c.binary()
	return ok
}

func (c *Drawio) Convert(ctx context.Context, job Job) ([]string, error) {
	if err := check(c, job); err != nil {
		return nil, err
	}
	bin, ok := c.binary()
	if !ok {
		return nil, &ConversionError{Converter: c.Name(), Err: ErrToolUnavailable}
	}

	out := outputPath(job)
	if err := runTool(ctx, c.logger, c.Name(), bin, drawioArgs(job, out)); err != nil {
		return nil, err
	}
	return []string{out}, nil
}

// drawioArgs exports the first page; png keeps a transparent background.
func drawioArgs(job Job, out string) []string {
	format := Normalize(job.OutputFormat)
	flag := format
	if flag == "jpeg" {
		flag = "jpg"
	}
	args := []string{"-x", job.InputPath, "-p", "0", "-f", flag, "-o", out}
	if format == "png" {
		args = append(args, "--transparent")
	}
	if runtime.GOOS == "linux" {
		args = append(args, "--no-sandbox")
	}
	return args
}
