package converter

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.NRGBA{R: 200, A: uint8(60 * y)})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestImageConvert(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "0123abcd.png")
	writePNG(t, input)
	c := NewImage(DefaultConfig(), logger.NewNop())

	for _, target := range []string{"jpeg", "jpg", "gif", "bmp", "tiff"} {
		t.Run(target, func(t *testing.T) {
			out, err := c.Convert(context.Background(),
				Job{InputPath: input, OutputDir: dir, InputFormat: "png", OutputFormat: target})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, "."+Normalize(target), filepath.Ext(out[0]))

			f, err := os.Open(out[0])
			require.NoError(t, err)
			defer f.Close()
			img, format, err := image.Decode(f)
			require.NoError(t, err)
			assert.Equal(t, Normalize(target), format)
			assert.Equal(t, 4, img.Bounds().Dx())
			assert.Equal(t, 3, img.Bounds().Dy())
		})
	}
}

func TestImageConvert_Rejects(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "0123abcd.png")
	writePNG(t, input)
	c := NewImage(DefaultConfig(), logger.NewNop())

	_, err := c.Convert(context.Background(),
		Job{InputPath: input, OutputDir: dir, InputFormat: "png", OutputFormat: "webp"})
	assert.ErrorIs(t, err, ErrUnsupportedPair)

	garbage := filepath.Join(dir, "beef.bmp")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = c.Convert(context.Background(),
		Job{InputPath: garbage, OutputDir: dir, InputFormat: "bmp", OutputFormat: "png"})
	var ce *ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "image", ce.Converter)
	_, statErr := os.Stat(filepath.Join(dir, "beef.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestImage_SVGInputOnly(t *testing.T) {
	c := NewImage(DefaultConfig(), logger.NewNop())
	assert.Contains(t, c.InputFormats(), "svg")
	assert.NotContains(t, c.OutputFormats(), "svg")
	for _, in := range c.InputFormats() {
		assert.NotContains(t, c.CompatibleWith(in), "svg", in)
	}
}

func TestImageConvert_SVG(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "5eed.svg")
	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 8 6" width="8" height="6">` +
		`<rect x="0" y="0" width="8" height="6" fill="#ff0000"/></svg>`
	require.NoError(t, os.WriteFile(input, []byte(svg), 0o644))
	c := NewImage(DefaultConfig(), logger.NewNop())

	tests := []struct {
		name   string
		target string
		err    error
	}{
		{name: "to png", target: "png"},
		{name: "to jpeg", target: "jpeg"},
		{name: "svg output refused", target: "svg", err: ErrUnsupportedPair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Convert(context.Background(),
				Job{InputPath: input, OutputDir: dir, InputFormat: "svg", OutputFormat: tt.target})
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Len(t, out, 1)

			f, err := os.Open(out[0])
			require.NoError(t, err)
			defer f.Close()
			img, format, err := image.Decode(f)
			require.NoError(t, err)
			assert.Equal(t, tt.target, format)
			assert.Equal(t, 8, img.Bounds().Dx())
			assert.Equal(t, 6, img.Bounds().Dy())
		})
	}
}

func TestFlatten(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.Set(0, 0, color.NRGBA{A: 0})
	r, g, b, a := flatten(src).At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
	assert.Equal(t, uint32(0xffff), a)
}
