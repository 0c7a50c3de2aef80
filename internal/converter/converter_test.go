package converter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"JPG", "jpeg"},
		{".jpg", "jpeg"},
		{"tif", "tiff"},
		{" yml ", "yaml"},
		{"HTM", "html"},
		{"markdown", "md"},
		{"mpeg", "mpg"},
		{"oga", "ogg"},
		{"png", "png"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}

	a := Aliases()
	a["jpg"] = "mutated"
	assert.Equal(t, "jpeg", Normalize("jpg"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType("jpg"))
	assert.Equal(t, "text/csv", ContentType("csv"))
	assert.Equal(t, "application/octet-stream", ContentType("xyz"))
}

func TestCompatibleWith(t *testing.T) {
	cfg := DefaultConfig()
	log := logger.NewNop()

	tests := []struct {
		name      string
		conv      Converter
		format    string
		contains  []string
		excludes  []string
		wantEmpty bool
	}{
		{name: "ffmpeg audio stays audio", conv: NewFFmpeg(cfg, log), format: "mp3",
			contains: []string{"wav", "flac", "ogg"}, excludes: []string{"mp3", "mp4", "gif"}},
		{name: "ffmpeg video reaches audio", conv: NewFFmpeg(cfg, log), format: "mp4",
			contains: []string{"mp3", "webm", "gif"}, excludes: []string{"mp4"}},
		{name: "ffmpeg alias input", conv: NewFFmpeg(cfg, log), format: "mpeg",
			contains: []string{"mp4"}, excludes: []string{"mpg"}},
		{name: "image excludes self and webp", conv: NewImage(cfg, log), format: "png",
			contains: []string{"jpeg", "gif", "bmp", "tiff"}, excludes: []string{"png", "webp"}},
		{name: "image webp input", conv: NewImage(cfg, log), format: "webp",
			contains: []string{"png", "jpeg"}, excludes: []string{"webp"}},
		{name: "image svg input", conv: NewImage(cfg, log), format: "svg",
			contains: []string{"png", "jpeg", "gif", "bmp", "tiff"}, excludes: []string{"svg", "webp"}},
		{name: "image jpg alias", conv: NewImage(cfg, log), format: "JPG",
			contains: []string{"png"}, excludes: []string{"jpeg"}},
		{name: "tabular", conv: NewTabular(log), format: "yml",
			contains: []string{"csv", "json"}, excludes: []string{"yaml"}},
		{name: "office docx", conv: NewOffice(cfg, log), format: "docx",
			contains: []string{"txt", "md", "html"}, excludes: []string{"csv"}},
		{name: "office xlsx", conv: NewOffice(cfg, log), format: "xlsx",
			contains: []string{"csv", "json", "yaml"}, excludes: []string{"txt"}},
		{name: "document pdf", conv: NewDocument(cfg, log), format: "pdf",
			contains: []string{"png", "jpeg", "txt", "html"}, excludes: []string{"pdf"}},
		{name: "markdown", conv: NewMarkdown(), format: "markdown", contains: []string{"html"}},
		{name: "drawio never to drawio", conv: NewDrawio(cfg, log), format: "drawio",
			contains: []string{"png", "pdf", "svg", "jpeg"}, excludes: []string{"drawio"}},
		{name: "unknown input", conv: NewImage(cfg, log), format: "mp3", wantEmpty: true},
		{name: "drawio non-drawio input", conv: NewDrawio(cfg, log), format: "png", wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.conv.CompatibleWith(tt.format)
			if tt.wantEmpty {
				assert.Empty(t, got)
				return
			}
			for _, f := range tt.contains {
				assert.Contains(t, got, f)
			}
			for _, f := range tt.excludes {
				assert.NotContains(t, got, f)
			}
			assert.IsNonDecreasing(t, got)
		})
	}
}

func TestBuiltin(t *testing.T) {
	names := func(cs []Converter) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Name())
		}
		return out
	}

	all := Builtin(nil, logger.NewNop())
	assert.ElementsMatch(t,
		[]string{"ffmpeg", "image", "tabular", "office", "document", "markdown", "drawio"},
		names(all))

	cfg := DefaultConfig()
	cfg.Disabled = []string{"ffmpeg", "drawio"}
	assert.NotContains(t, names(Builtin(cfg, logger.NewNop())), "ffmpeg")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{Quality: "ultra"}).Validate())
	assert.Error(t, (&Config{Timeout: -1}).Validate())
	assert.Error(t, (&Config{DocumentDPI: -5}).Validate())
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "0a0b.csv")
	require.NoError(t, os.WriteFile(input, []byte("a\n1\n"), 0o644))
	c := NewTabular(logger.NewNop())

	err := check(c, Job{InputPath: input, OutputDir: dir, InputFormat: "csv", OutputFormat: "csv"})
	assert.ErrorIs(t, err, ErrUnsupportedPair)

	err = check(c, Job{InputPath: input, OutputDir: dir, InputFormat: "csv", OutputFormat: "png"})
	assert.ErrorIs(t, err, ErrUnsupportedPair)

	err = check(c, Job{InputPath: filepath.Join(dir, "missing.csv"), OutputDir: dir, InputFormat: "csv", OutputFormat: "json"})
	assert.ErrorIs(t, err, ErrInputMissing)

	err = check(c, Job{InputPath: dir, OutputDir: dir, InputFormat: "csv", OutputFormat: "json"})
	assert.ErrorIs(t, err, ErrInputMissing)

	assert.NoError(t, check(c, Job{InputPath: input, OutputDir: dir, InputFormat: "CSV", OutputFormat: "yml"}))
}

func TestOutputPath(t *testing.T) {
	job := Job{InputPath: "/data/uploads/abc.pdf", OutputDir: "/data/tmp/job-1", OutputFormat: "jpg"}
	assert.Equal(t, filepath.Join("/data/tmp/job-1", "abc.jpeg"), outputPath(job))
	assert.Equal(t, filepath.Join("/data/tmp/job-1", "abc-3.jpeg"), outputPathN(job, 2))
}

func TestConversionError(t *testing.T) {
	base := errors.New("non-zero exit code")
	err := error(&ConversionError{Converter: "ffmpeg", ExitCode: 1, Output: "Invalid data found\n", Err: base})
	assert.Equal(t, "ffmpeg conversion failed (exit 1): non-zero exit code: Invalid data found", err.Error())
	assert.ErrorIs(t, err, base)

	wrapped := failed("image", err)
	var ce *ConversionError
	require.ErrorAs(t, wrapped, &ce)
	assert.Equal(t, "ffmpeg", ce.Converter)

	plain := failed("image", errors.New("decode"))
	require.ErrorAs(t, plain, &ce)
	assert.Equal(t, "image", ce.Converter)
}

func TestRunTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	log := logger.NewNop()
	ctx := context.Background()

	require.NoError(t, runTool(ctx, log, "sh", "sh", []string{"-c", "exit 0"}))

	err := runTool(ctx, log, "sh", "sh", []string{"-c", "echo broken input >&2; exit 3"})
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.ExitCode)
	assert.Contains(t, ce.Output, "broken input")

	err = runTool(ctx, log, "ghost", "definitely-not-a-real-binary-xyz", nil)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ghost", ce.Converter)
}

func TestFFmpegArgs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quality = QualityHigh
	c := NewFFmpeg(cfg, logger.NewNop())

	args := c.args(Job{InputPath: "in.mp4", OutputFormat: "mp3"}, "out.mp3")
	assert.Contains(t, args, "-vn")
	assert.NotContains(t, args, "-crf")
	assert.Equal(t, "out.mp3", args[len(args)-1])

	args = c.args(Job{InputPath: "in.avi", OutputFormat: "mp4"}, "out.mp4")
	assert.Contains(t, args, "18")
	assert.NotContains(t, args, "-vn")

	args = c.args(Job{InputPath: "in.mp4", OutputFormat: "gif"}, "out.gif")
	assert.NotContains(t, args, "-crf")
}

func TestFFmpegAvailable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FFmpegPath = "definitely-not-ffmpeg-xyz"
	assert.False(t, NewFFmpeg(cfg, logger.NewNop()).Available())
}

func TestDrawioArgs(t *testing.T) {
	args := drawioArgs(Job{InputPath: "d.drawio", OutputFormat: "jpeg"}, "d.jpeg")
	assert.Contains(t, args, "jpg")
	assert.NotContains(t, args, "--transparent")

	args = drawioArgs(Job{InputPath: "d.drawio", OutputFormat: "png"}, "d.png")
	assert.Contains(t, args, "--transparent")

	cfg := DefaultConfig()
	cfg.DrawioPath = "/nonexistent/drawio"
	assert.False(t, NewDrawio(cfg, logger.NewNop()).Available())
}

func TestOfficeRequiresLicense(t *testing.T) {
	assert.False(t, NewOffice(DefaultConfig(), logger.NewNop()).Available())
}

func TestHeadingLevel(t *testing.T) {
	assert.Equal(t, 1, headingLevel("Heading1"))
	assert.Equal(t, 3, headingLevel("Heading 3"))
	assert.Equal(t, 1, headingLevel("Title"))
	assert.Equal(t, 0, headingLevel("Normal"))
	assert.Equal(t, 0, headingLevel("Heading9"))
}

func TestMarkdownConvert(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "c0ffee.md")
	src := "# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n~~gone~~ <script>\n"
	require.NoError(t, os.WriteFile(input, []byte(src), 0o644))

	out, err := NewMarkdown().Convert(context.Background(),
		Job{InputPath: input, OutputDir: dir, InputFormat: "md", OutputFormat: "html"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, filepath.Join(dir, "c0ffee.html"), out[0])

	html, err := os.ReadFile(out[0])
	require.NoError(t, err)
	s := string(html)
	assert.Contains(t, s, "<title>c0ffee</title>")
	assert.Contains(t, s, "<h1>Title</h1>")
	assert.Contains(t, s, "<table>")
	assert.Contains(t, s, "<del>gone</del>")
	assert.NotContains(t, s, "<script>")
}
