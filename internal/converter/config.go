package converter

import (
	"errors"
	"time"
)

// Quality presets shared by lossy backends.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

// Config tunes the builtin converters.
type Config struct {
	// Timeout bounds a single Convert call; 0 disables it.
	Timeout time.Duration `mapstructure:"timeout"`
	// Quality applies to jpeg encoding and ffmpeg video encodes.
	Quality string `mapstructure:"quality"`

	FFmpegPath string `mapstructure:"ffmpegpath"`
	// DrawioPath overrides the draw.io CLI lookup.
	DrawioPath string `mapstructure:"drawiopath"`
	// UniofficeLicenseKey enables the office converter when set.
	UniofficeLicenseKey string `mapstructure:"uniofficelicensekey"`
	// DocumentDPI is the rasterization density for document pages.
	DocumentDPI float64 `mapstructure:"documentdpi"`

	// Disabled lists converter names to leave out of discovery.
	Disabled []string `mapstructure:"disabled"`
}

// DefaultConfig returns the defaults used when no config file is given.
func DefaultConfig() *Config {
	return &Config{
		Timeout:     10 * time.Minute,
		Quality:     QualityMedium,
		FFmpegPath:  "ffmpeg",
		DocumentDPI: 150,
	}
}

func (c *Config) Validate() error {
	switch c.Quality {
	case "", QualityHigh, QualityMedium, QualityLow:
	default:
		return errors.New("converter: quality must be one of high, medium, low")
	}
	if c.Timeout < 0 {
		return errors.New("converter: timeout must be >= 0")
	}
	if c.DocumentDPI < 0 {
		return errors.New("converter: document dpi must be >= 0")
	}
	return nil
}

func (c *Config) disabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return true
		}
	}
	return false
}
