package biz_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/redis"
	"github.com/lk2023060901/transmute-backend/internal/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourAgo() time.Time {
	return time.Now().Add(-time.Hour)
}

// seed uploads one original converted once, both stamped an hour ago.
func seed(t *testing.T, env *testEnv) (*biz.UploadedFile, *biz.FileRecord) {
	t.Helper()
	ctx := context.Background()
	up, err := env.files.Upload(ctx, "photo.JPG", bytes.NewReader(jpegBytes(t)))
	require.NoError(t, err)
	conv, err := env.convs.Create(ctx, up.ID, "png")
	require.NoError(t, err)
	return up, conv
}

func setTTL(t *testing.T, env *testEnv, minutes int) {
	t.Helper()
	_, err := env.settings.Update(context.Background(), map[string]any{"cleanup_ttl_minutes": minutes})
	require.NoError(t, err)
}

func TestReaper_TTLScenario(t *testing.T) {
	env := newTestEnv(t, envOptions{clock: hourAgo})
	ctx := context.Background()
	up, conv := seed(t, env)

	reaper, err := biz.NewReaper(env.deps, biz.ReaperConfig{})
	require.NoError(t, err)

	setTTL(t, env, 120)
	res, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120), res.TTLMinutes)
	assert.Equal(t, biz.StoreSweep{Scanned: 1}, res.Originals)
	assert.Equal(t, biz.StoreSweep{Scanned: 1}, res.Converted)
	assert.FileExists(t, up.StoragePath)

	setTTL(t, env, 0)
	res, err = reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, biz.StoreSweep{Scanned: 1, Deleted: 1}, res.Originals)
	assert.Equal(t, biz.StoreSweep{Scanned: 1, Deleted: 1}, res.Converted)

	assert.NoFileExists(t, up.StoragePath)
	assert.NoFileExists(t, conv.StoragePath)
	_, err = env.stores.Originals.Get(ctx, up.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound)
	_, err = env.stores.Relations.GetByConverted(ctx, conv.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound)
}

func TestReaper_FreshRecordsSurviveZeroTTLWithinSameInstant(t *testing.T) {
	// created_at has second precision
	now := time.Now().Truncate(time.Second)
	env := newTestEnv(t, envOptions{clock: func() time.Time { return now }})
	ctx := context.Background()
	up, _ := seed(t, env)
	setTTL(t, env, 0)

	reaper, err := biz.NewReaper(env.deps, biz.ReaperConfig{}, biz.WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	res, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Originals.Deleted)
	assert.FileExists(t, up.StoragePath)
}

func TestReaper_PerRecordFailuresDoNotStopTheSweep(t *testing.T) {
	env := newTestEnv(t, envOptions{clock: hourAgo})
	ctx := context.Background()

	missing, _ := seed(t, env)
	require.NoError(t, os.Remove(missing.StoragePath))

	outside := &biz.FileRecord{
		ID:               "abc0001",
		StoragePath:      "/etc/passwd",
		OriginalFilename: "passwd",
		Checksum:         fmt.Sprintf("%064d", 0),
	}
	require.NoError(t, env.stores.Originals.Insert(ctx, outside))

	pool, err := workerpool.New(&workerpool.Config{Workers: 4, ExpiryDuration: time.Second}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Shutdown(time.Second) })

	setTTL(t, env, 0)
	reaper, err := biz.NewReaper(env.deps, biz.ReaperConfig{}, biz.WithPool(pool))
	require.NoError(t, err)

	res, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Originals.Scanned)
	assert.Equal(t, 1, res.Originals.Deleted, "missing file still removes its row")
	assert.Equal(t, 1, res.Originals.Errors)
	assert.Equal(t, 1, res.Converted.Deleted)

	_, err = env.stores.Originals.Get(ctx, missing.ID)
	assert.ErrorIs(t, err, biz.ErrNotFound)
	_, err = env.stores.Originals.Get(ctx, outside.ID)
	assert.NoError(t, err)
}

type fakeLocker struct {
	held  bool
	calls atomic.Int32
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.calls.Add(1)
	if key != biz.ReaperLockKey {
		return fmt.Errorf("unexpected key %s", key)
	}
	if l.held {
		return fmt.Errorf("lock %s: %w", key, redis.ErrLockHeld)
	}
	return fn(ctx)
}

func TestReaper_Lock(t *testing.T) {
	env := newTestEnv(t, envOptions{clock: hourAgo})
	ctx := context.Background()
	up, _ := seed(t, env)
	setTTL(t, env, 0)

	locker := &fakeLocker{held: true}
	reaper, err := biz.NewReaper(env.deps, biz.ReaperConfig{}, biz.WithLocker(locker))
	require.NoError(t, err)

	res, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.FileExists(t, up.StoragePath)

	locker.held = false
	res, err = reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Originals.Deleted)
	assert.Equal(t, int32(2), locker.calls.Load())
}

func TestReaper_StartStop(t *testing.T) {
	env := newTestEnv(t, envOptions{clock: hourAgo})
	up, _ := seed(t, env)
	setTTL(t, env, 0)

	reaper, err := biz.NewReaper(env.deps, biz.ReaperConfig{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, reaper.Start(context.Background()))
	assert.Error(t, reaper.Start(context.Background()))

	assert.Eventually(t, func() bool {
		_, err := env.stores.Originals.Get(context.Background(), up.ID)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	reaper.Stop()
	reaper.Stop()

	require.NoError(t, reaper.Start(context.Background()))
	reaper.Stop()
}

func TestReaper_StartSweepsBeforeFirstTick(t *testing.T) {
	env := newTestEnv(t, envOptions{clock: hourAgo})
	up, conv := seed(t, env)
	setTTL(t, env, 0)

	reaper, err := biz.NewReaper(env.deps, biz.ReaperConfig{Interval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, reaper.Start(context.Background()))
	defer reaper.Stop()

	assert.Eventually(t, func() bool {
		_, errUp := env.stores.Originals.Get(context.Background(), up.ID)
		_, errConv := env.stores.Converted.Get(context.Background(), conv.ID)
		return errUp != nil && errConv != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoFileExists(t, up.StoragePath)
}
