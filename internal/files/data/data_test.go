package data

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/lk2023060901/transmute-backend/internal/pkg/database"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTables = TableNames{
	Files:       "files_metadata",
	Conversions: "conversions_metadata",
	Relations:   "conversion_relations",
	Settings:    "app_settings",
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "app.db")
	cfg.LogLevel = "silent"

	db, err := database.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStores(t *testing.T, opts ...FileOption) *Stores {
	t.Helper()
	s, err := NewStores(context.Background(), newTestDB(t), testTables, opts...)
	require.NoError(t, err)
	return s
}

func fixedClock(ts string) Clock {
	return func() time.Time {
		tm, _ := time.Parse(biz.TimeLayout, ts)
		return tm
	}
}

func record(id string) *biz.FileRecord {
	return &biz.FileRecord{
		ID:               id,
		StoragePath:      "/data/uploads/" + id + ".jpeg",
		OriginalFilename: "photo.JPG",
		MediaType:        "jpeg",
		Extension:        ".jpeg",
		SizeBytes:        2048,
		Checksum:         strings.Repeat("ab", 32),
	}
}

func TestFileRepo_InsertGet(t *testing.T) {
	s := newTestStores(t, WithClock(fixedClock("2024-03-01 12:00:00")))
	ctx := context.Background()

	rec := record("5f0c7a52-7d1e-4a43-9d54-2f3d6c1e8b90")
	rec.CreatedAt = "1999-01-01 00:00:00"
	require.NoError(t, s.Originals.Insert(ctx, rec))
	assert.Equal(t, "2024-03-01 12:00:00", rec.CreatedAt)

	got, err := s.Originals.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = s.Converted.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound)
}

func TestFileRepo_InsertRejectsIncompleteRecords(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*biz.FileRecord)
		field  string
	}{
		{name: "empty id", mutate: func(r *biz.FileRecord) { r.ID = "" }, field: "id"},
		{name: "empty path", mutate: func(r *biz.FileRecord) { r.StoragePath = " " }, field: "storage_path"},
		{name: "empty filename", mutate: func(r *biz.FileRecord) { r.OriginalFilename = "" }, field: "original_filename"},
		{name: "short checksum", mutate: func(r *biz.FileRecord) { r.Checksum = "abc" }, field: "sha256_checksum"},
		{name: "negative size", mutate: func(r *biz.FileRecord) { r.SizeBytes = -1 }, field: "size_bytes"},
		{name: "media type without extension", mutate: func(r *biz.FileRecord) { r.Extension = "" }, field: "media_type/extension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("0a1b2c3d")
			tt.mutate(rec)
			err := s.Originals.Insert(ctx, rec)
			require.ErrorIs(t, err, biz.ErrSchemaMismatch)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	list, err := s.Originals.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	untyped := record("0a1b2c3e")
	untyped.MediaType, untyped.Extension = "", ""
	assert.NoError(t, s.Originals.Insert(ctx, untyped))
	assert.ErrorIs(t, s.Originals.Insert(ctx, nil), biz.ErrSchemaMismatch)
}

func TestFileRepo_DuplicateID(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, s.Originals.Insert(ctx, record("abc123")))
	assert.ErrorIs(t, s.Originals.Insert(ctx, record("abc123")), biz.ErrSchemaMismatch)
	assert.NoError(t, s.Converted.Insert(ctx, record("abc123")))
}

func TestFileRepo_ListInsertionOrder(t *testing.T) {
	s := newTestStores(t, WithClock(fixedClock("2024-03-01 12:00:00")))
	ctx := context.Background()

	ids := []string{"ff01", "0a02", "c003", "1b04"}
	for _, id := range ids {
		require.NoError(t, s.Converted.Insert(ctx, record(id)))
	}

	list, err := s.Converted.List(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(list))
	for _, r := range list {
		got = append(got, r.ID)
	}
	assert.Equal(t, ids, got)
}

func TestFileRepo_Delete(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, s.Originals.Insert(ctx, record("dead01")))
	require.NoError(t, s.Originals.Delete(ctx, "dead01"))
	_, err := s.Originals.Get(ctx, "dead01")
	assert.ErrorIs(t, err, biz.ErrNotFound)

	assert.NoError(t, s.Originals.Delete(ctx, "never-existed"))
}

func TestNewFileRepo_RejectsBadTableNames(t *testing.T) {
	db := newTestDB(t)
	for _, name := range []string{"", "1files", "files;drop", "files-meta", strings.Repeat("a", 65)} {
		_, err := NewFileRepo(db, name)
		assert.ErrorIs(t, err, biz.ErrInvalidIdentifier, name)
	}
	_, err := NewRelationRepo(db, "rel ations")
	assert.ErrorIs(t, err, biz.ErrInvalidIdentifier)
	_, err = NewSettingsRepo(db, "")
	assert.ErrorIs(t, err, biz.ErrInvalidIdentifier)
}

func relation(original, converted string) *biz.ConversionRelation {
	return &biz.ConversionRelation{
		OriginalFileID:    original,
		ConvertedFileID:   converted,
		OriginalFilename:  "photo.JPG",
		OriginalMediaType: "jpeg",
		OriginalExtension: ".jpeg",
		OriginalSizeBytes: 2048,
	}
}

func TestRelationRepo(t *testing.T) {
	s := newTestStores(t)
	r := s.Relations
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, relation("aa", "c1")))
	require.NoError(t, r.Insert(ctx, relation("aa", "c2")))
	require.NoError(t, r.Insert(ctx, relation("bb", "c3")))

	first, err := r.GetByOriginal(ctx, "aa")
	require.NoError(t, err)
	assert.Equal(t, "c1", first)

	all, err := r.ListByOriginal(ctx, "aa")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, all)

	orig, err := r.GetByConverted(ctx, "c3")
	require.NoError(t, err)
	assert.Equal(t, "bb", orig)

	rel, err := r.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, relation("aa", "c2"), rel)

	assert.ErrorIs(t, r.Insert(ctx, relation("bb", "c1")), biz.ErrSchemaMismatch)
	bad := relation("", "c9")
	assert.ErrorIs(t, r.Insert(ctx, bad), biz.ErrSchemaMismatch)

	require.NoError(t, r.DeleteByOriginal(ctx, "aa"))
	_, err = r.GetByOriginal(ctx, "aa")
	assert.ErrorIs(t, err, biz.ErrNotFound)
	ids, err := r.ListByOriginal(ctx, "aa")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, r.DeleteByConverted(ctx, "c3"))
	_, err = r.GetByConverted(ctx, "c3")
	assert.ErrorIs(t, err, biz.ErrNotFound)

	assert.NoError(t, r.DeleteByOriginal(ctx, "missing"))
	assert.NoError(t, r.DeleteByConverted(ctx, "missing"))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSettingsRepo(t *testing.T) {
	s := newTestStores(t)
	repo := s.Settings
	ctx := context.Background()

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, biz.DefaultSettings(), got)

	updated, err := repo.Update(ctx, map[string]any{
		"theme":               "nigredo",
		"cleanup_ttl_minutes": float64(120),
		"unknown":             "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "nigredo", updated.Theme)
	assert.Equal(t, int64(120), updated.CleanupTTLMinutes)
	assert.True(t, updated.KeepOriginals)

	invalid := []map[string]any{
		{"theme": "purple"},
		{"theme": 3},
		{"auto_download": "yes"},
		{"keep_originals": 1},
		{"cleanup_ttl_minutes": -5},
		{"cleanup_ttl_minutes": 1.5},
		{"cleanup_ttl_minutes": "60"},
		{"theme": "albedo", "cleanup_ttl_minutes": -1},
	}
	for _, patch := range invalid {
		_, err := repo.Update(ctx, patch)
		assert.ErrorIs(t, err, biz.ErrInvalidSettingsValue, "%v", patch)
	}

	got, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestSettingsRepo_MigrateKeepsExistingRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	repo, err := NewSettingsRepo(db, "app_settings")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx))
	_, err = repo.Update(ctx, map[string]any{"auto_download": true})
	require.NoError(t, err)

	require.NoError(t, repo.Migrate(ctx))
	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.AutoDownload)
}

func TestSettingsRepo_GetWithoutRow(t *testing.T) {
	db := newTestDB(t)
	repo, err := NewSettingsRepo(db, "settings_unseeded")
	require.NoError(t, err)
	require.NoError(t, db.Table("settings_unseeded").AutoMigrate(&SettingsPO{}))

	got, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, biz.DefaultSettings(), got)
}
