package biz_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertTmpEmpty(t *testing.T, env *testEnv) {
	t.Helper()
	entries, err := os.ReadDir(env.dirs.Tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreate_PhotoJPGScenario(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	body := jpegBytes(t)

	up, err := env.files.Upload(ctx, "photo.JPG", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, "jpg", up.MediaType)
	require.Equal(t, sha(body), up.Checksum)

	rec, err := env.convs.Create(ctx, up.ID, "png")
	require.NoError(t, err)

	assert.NotEqual(t, up.ID, rec.ID)
	assert.Equal(t, ".png", rec.Extension)
	assert.Equal(t, "png", rec.MediaType)
	assert.Equal(t, "photo.JPG", rec.OriginalFilename)
	assert.Equal(t, rec.ID+".png", filepath.Base(rec.StoragePath))

	out, err := os.ReadFile(rec.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, sha(out), rec.Checksum)
	assert.Equal(t, int64(len(out)), rec.SizeBytes)
	assert.Equal(t, []byte("\x89PNG"), out[:4])

	resolvedOutputs, err := filepath.EvalSymlinks(env.dirs.Outputs)
	require.NoError(t, err)
	assert.Equal(t, resolvedOutputs, filepath.Dir(rec.StoragePath))
	assertTmpEmpty(t, env)

	require.NoError(t, env.stores.Originals.Delete(ctx, up.ID))

	rel, err := env.stores.Relations.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, up.ID, rel.OriginalFileID)
	assert.Equal(t, ".jpg", rel.OriginalExtension)
	assert.Equal(t, "jpg", rel.OriginalMediaType)
	assert.Equal(t, "photo.JPG", rel.OriginalFilename)
	assert.Equal(t, up.SizeBytes, rel.OriginalSizeBytes)
}

func TestCreate_FormatHandling(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	up, err := env.files.Upload(ctx, "photo.png", bytes.NewReader(jpegBytes(t)))
	require.NoError(t, err)
	// a jpeg body named .png is still decodable by content
	rec, err := env.convs.Create(ctx, up.ID, "  .JPG ")
	require.NoError(t, err)
	assert.Equal(t, "jpg", rec.MediaType)
	assert.True(t, strings.HasSuffix(rec.StoragePath, ".jpg"))

	tests := []struct {
		name   string
		id     string
		format string
		want   error
	}{
		{name: "unknown original", id: "abcdef01", format: "png", want: biz.ErrNotFound},
		{name: "empty format", id: up.ID, format: " . ", want: biz.ErrNoConverterAvailable},
		{name: "unsupported pair", id: up.ID, format: "mp3", want: biz.ErrNoConverterAvailable},
		{name: "same format", id: up.ID, format: "png", want: biz.ErrNoConverterAvailable},
		{name: "input only format", id: up.ID, format: "webp", want: biz.ErrNoConverterAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.convs.Create(ctx, tt.id, tt.format)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// converted files are never conversion sources
	_, err = env.convs.Create(ctx, rec.ID, "png")
	assert.ErrorIs(t, err, biz.ErrNotFound)
}

func TestCreate_ConverterFailure(t *testing.T) {
	toolErr := &converter.ConversionError{Converter: "fake", ExitCode: 1, Output: "bad input", Err: errBoom}
	env := newTestEnv(t, envOptions{converters: []converter.Converter{
		&fakeConverter{name: "fake", in: "src", out: "dst", err: toolErr},
	}})
	ctx := context.Background()

	up, err := env.files.Upload(ctx, "input.src", strings.NewReader("data"))
	require.NoError(t, err)

	_, err = env.convs.Create(ctx, up.ID, "dst")
	require.ErrorIs(t, err, biz.ErrConversionFailed)
	var convErr *converter.ConversionError
	require.True(t, errors.As(err, &convErr))
	assert.Equal(t, "bad input", convErr.Output)

	list, err := env.stores.Converted.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assertTmpEmpty(t, env)
}

// refusingConverter declares src and dst but converts nothing.
type refusingConverter struct{ fakeConverter }

func (r *refusingConverter) CompatibleWith(string) []string { return nil }

func TestCreate_PairRefusedByConverter(t *testing.T) {
	tests := []struct {
		name string
		conv converter.Converter
	}{
		{
			name: "excluded by compatibility rules",
			conv: &refusingConverter{fakeConverter{name: "refuse", in: "src", out: "dst"}},
		},
		{
			name: "rejected by the converter at run time",
			conv: &fakeConverter{name: "late", in: "src", out: "dst", err: fmt.Errorf("late: %w: src to dst", converter.ErrUnsupportedPair)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{converters: []converter.Converter{tt.conv}})
			ctx := context.Background()

			up, err := env.files.Upload(ctx, "input.src", strings.NewReader("data"))
			require.NoError(t, err)

			_, err = env.convs.Create(ctx, up.ID, "dst")
			assert.ErrorIs(t, err, biz.ErrNoConverterAvailable)
			assert.NotErrorIs(t, err, biz.ErrConversionFailed)
			assertTmpEmpty(t, env)
		})
	}
}

func TestCreate_Timeout(t *testing.T) {
	env := newTestEnv(t, envOptions{
		converters: []converter.Converter{&fakeConverter{name: "slow", in: "src", out: "dst", block: true}},
		timeout:    20 * time.Millisecond,
	})
	ctx := context.Background()

	up, err := env.files.Upload(ctx, "input.src", strings.NewReader("data"))
	require.NoError(t, err)

	_, err = env.convs.Create(ctx, up.ID, "dst")
	assert.ErrorIs(t, err, biz.ErrConversionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assertTmpEmpty(t, env)
}

func TestCreate_KeepsFirstOfSeveralOutputs(t *testing.T) {
	env := newTestEnv(t, envOptions{converters: []converter.Converter{
		&fakeConverter{name: "pages", in: "src", out: "dst", pages: 3},
	}})
	ctx := context.Background()

	up, err := env.files.Upload(ctx, "book.src", strings.NewReader("data"))
	require.NoError(t, err)

	rec, err := env.convs.Create(ctx, up.ID, "dst")
	require.NoError(t, err)
	content, err := os.ReadFile(rec.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "converted:data", string(content))

	outputs, err := os.ReadDir(env.dirs.Outputs)
	require.NoError(t, err)
	assert.Len(t, outputs, 1)
	assertTmpEmpty(t, env)
}

func TestCreate_DropsOriginalWhenNotKept(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	_, err := env.settings.Update(ctx, map[string]any{"keep_originals": false})
	require.NoError(t, err)

	up, err := env.files.Upload(ctx, "photo.JPG", bytes.NewReader(jpegBytes(t)))
	require.NoError(t, err)
	rec, err := env.convs.Create(ctx, up.ID, "png")
	require.NoError(t, err)

	_, err = env.stores.Originals.Get(ctx, up.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound)
	assert.NoFileExists(t, up.StoragePath)

	rel, err := env.stores.Relations.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ".jpg", rel.OriginalExtension)

	complete, err := env.convs.ListComplete(ctx)
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, up.ID, complete[0].Original.OriginalFileID)
}

func TestCreate_Mirror(t *testing.T) {
	mirror := &recordingMirror{failWith: errBoom}
	env := newTestEnv(t, envOptions{mirror: mirror})
	ctx := context.Background()

	up, err := env.files.Upload(ctx, "photo.jpg", bytes.NewReader(jpegBytes(t)))
	require.NoError(t, err)
	rec, err := env.convs.Create(ctx, up.ID, "png")
	require.NoError(t, err, "mirror failures are not fatal")
	assert.Equal(t, []string{rec.StoragePath}, mirror.published)

	require.NoError(t, env.convs.Delete(ctx, rec.ID))
	assert.Equal(t, []string{rec.StoragePath}, mirror.removed)
}

func TestConversionDelete(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	up, err := env.files.Upload(ctx, "photo.jpg", bytes.NewReader(jpegBytes(t)))
	require.NoError(t, err)
	a, err := env.convs.Create(ctx, up.ID, "png")
	require.NoError(t, err)
	b, err := env.convs.Create(ctx, up.ID, "gif")
	require.NoError(t, err)

	require.NoError(t, env.convs.Delete(ctx, a.ID))
	assert.NoFileExists(t, a.StoragePath)
	_, err = env.stores.Relations.GetByConverted(ctx, a.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound)

	assert.FileExists(t, up.StoragePath)
	_, err = env.stores.Originals.Get(ctx, up.ID)
	require.NoError(t, err)
	first, err := env.stores.Relations.GetByOriginal(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, first)

	assert.ErrorIs(t, env.convs.Delete(ctx, a.ID), biz.ErrNotFound)

	n, err := env.convs.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, b.StoragePath)
}

func TestListComplete(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	up, err := env.files.Upload(ctx, "photo.jpg", bytes.NewReader(jpegBytes(t)))
	require.NoError(t, err)
	a, err := env.convs.Create(ctx, up.ID, "png")
	require.NoError(t, err)
	b, err := env.convs.Create(ctx, up.ID, "tiff")
	require.NoError(t, err)

	list, err := env.convs.ListComplete(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
	for _, c := range list {
		require.NotNil(t, c.Original)
		assert.Equal(t, up.ID, c.Original.OriginalFileID)
		assert.Equal(t, "photo.jpg", c.Original.OriginalFilename)
	}
}
