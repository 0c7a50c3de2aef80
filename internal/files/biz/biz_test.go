package biz_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/converter/registry"
	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/lk2023060901/transmute-backend/internal/files/data"
	"github.com/lk2023060901/transmute-backend/internal/pkg/database"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
	"github.com/lk2023060901/transmute-backend/internal/storage"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	dirs     storage.Dirs
	stores   *data.Stores
	deps     biz.Deps
	files    *biz.FileUseCase
	convs    *biz.ConversionUseCase
	settings *biz.SettingsUseCase
}

type envOptions struct {
	converters []converter.Converter
	clock      data.Clock
	mirror     biz.Mirror
	events     biz.Notifier
	timeout    time.Duration
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	root := t.TempDir()
	log := logger.NewNop()

	dbCfg := database.DefaultConfig()
	dbCfg.Path = filepath.Join(root, "db", "app.db")
	dbCfg.LogLevel = "silent"
	db, err := database.New(dbCfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var fileOpts []data.FileOption
	if opts.clock != nil {
		fileOpts = append(fileOpts, data.WithClock(opts.clock))
	}
	stores, err := data.NewStores(context.Background(), db, data.TableNames{
		Files:       "files_metadata",
		Conversions: "conversions_metadata",
		Relations:   "conversion_relations",
		Settings:    "app_settings",
	}, fileOpts...)
	require.NoError(t, err)

	dirs := storage.DirsUnder(filepath.Join(root, "data"))
	store, err := storage.NewOS(dirs)
	require.NoError(t, err)
	paths, err := validator.NewPathValidator(dirs.All()...)
	require.NoError(t, err)

	convs := opts.converters
	if convs == nil {
		convs = []converter.Converter{converter.NewImage(converter.DefaultConfig(), log)}
	}

	deps := biz.Deps{
		Originals: stores.Originals,
		Converted: stores.Converted,
		Relations: stores.Relations,
		Settings:  stores.Settings,
		Store:     store,
		Paths:     paths,
		Registry:  registry.New(convs, log),
		Mirror:    opts.mirror,
		Events:    opts.events,
		Logger:    log,
	}

	files, err := biz.NewFileUseCase(deps)
	require.NoError(t, err)
	conversions, err := biz.NewConversionUseCase(deps, opts.timeout)
	require.NoError(t, err)

	return &testEnv{
		dirs:     dirs,
		stores:   stores,
		deps:     deps,
		files:    files,
		convs:    conversions,
		settings: biz.NewSettingsUseCase(stores.Settings, log),
	}
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 32), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func sha(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// fakeConverter turns "src" files into "dst" files by copying bytes, or
// fails with err.
type fakeConverter struct {
	name    string
	in, out string
	err     error
	pages   int
	block   bool
}

func (f *fakeConverter) Name() string            { return f.name }
func (f *fakeConverter) InputFormats() []string  { return []string{f.in} }
func (f *fakeConverter) OutputFormats() []string { return []string{f.out} }
func (f *fakeConverter) Available() bool         { return true }

func (f *fakeConverter) CompatibleWith(format string) []string {
	if converter.Normalize(format) == f.in {
		return []string{f.out}
	}
	return nil
}

func (f *fakeConverter) Convert(ctx context.Context, job converter.Job) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.block {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(job.InputPath)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(job.InputPath)
	stem := base[:len(base)-len(filepath.Ext(base))]

	pages := f.pages
	if pages == 0 {
		pages = 1
	}
	var out []string
	for i := 0; i < pages; i++ {
		name := stem + "." + job.OutputFormat
		if pages > 1 {
			name = stem + "-" + string(rune('1'+i)) + "." + job.OutputFormat
		}
		p := filepath.Join(job.OutputDir, name)
		if err := os.WriteFile(p, append([]byte("converted:"), body...), 0o600); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// recordingMirror remembers published and removed paths.
type recordingMirror struct {
	published []string
	removed   []string
	failWith  error
}

func (m *recordingMirror) Publish(_ context.Context, path, _ string) error {
	m.published = append(m.published, path)
	return m.failWith
}

func (m *recordingMirror) Remove(_ context.Context, path string) error {
	m.removed = append(m.removed, path)
	return m.failWith
}

var errBoom = errors.New("boom")
