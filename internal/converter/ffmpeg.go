package converter

import (
	"context"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
)

var (
	videoFormats = newFormatSet("mp4", "avi", "mov", "mkv", "webm", "flv", "wmv", "mpg", "m4v", "gif")
	audioFormats = newFormatSet("mp3", "wav", "aac", "flac", "ogg", "wma", "m4a", "opus")
)

// FFmpeg converts between audio and video containers. Audio inputs can only
// become other audio formats.
type FFmpeg struct {
	binary  string
	quality string
	logger  *logger.Logger
	all     formatSet
}

func NewFFmpeg(cfg *Config, log *logger.Logger) *FFmpeg {
	all := newFormatSet(videoFormats.sorted()...)
	for f := range audioFormats {
		all[f] = struct{}{}
	}
	binary := cfg.FFmpegPath
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, quality: cfg.Quality, logger: log.Named("ffmpeg"), all: all}
}

func (c *FFmpeg) Name() string { return "ffmpeg" }

func (c *FFmpeg) InputFormats() []string { return c.all.sorted() }

func (c *FFmpeg) OutputFormats() []string { return c.all.sorted() }

func (c *FFmpeg) CompatibleWith(format string) []string {
	switch {
	case audioFormats.has(format):
		return audioFormats.without(format)
	case c.all.has(format):
		return c.all.without(format)
	default:
		return nil
	}
}

func (c *FFmpeg) Available() bool {
	_, ok := resolveBinary(c.binary)
	return ok
}

func (c *FFmpeg) Convert(ctx context.Context, job Job) ([]string, error) {
	if err := check(c, job); err != nil {
		return nil, err
	}

	out := outputPath(job)
	if err := runTool(ctx, c.logger, c.Name(), c.binary, c.args(job, out)); err != nil {
		return nil, err
	}
	return []string{out}, nil
}

func (c *FFmpeg) args(job Job, out string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", job.InputPath}

	target := Normalize(job.OutputFormat)
	if audioFormats.has(target) {
		args = append(args, "-vn")
	} else if crf := crfFor(c.quality, target); crf != nil {
		args = append(args, crf...)
	}
	return append(args, out)
}

// crfFor maps a quality preset to x264-style flags for formats that take them.
func crfFor(quality, format string) []string {
	switch format {
	case "mp4", "avi", "mov", "mkv", "webm":
	default:
		return nil
	}
	switch quality {
	case QualityHigh:
		return []string{"-crf", "18", "-preset", "slow"}
	case QualityLow:
		return []string{"-crf", "28", "-preset", "fast"}
	case QualityMedium:
		return []string{"-crf", "23", "-preset", "medium"}
	}
	return nil
}
