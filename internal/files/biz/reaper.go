package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/metrics"
	"github.com/lk2023060901/transmute-backend/internal/pkg/redis"
	"github.com/lk2023060901/transmute-backend/internal/pkg/workerpool"
	"go.uber.org/zap"
)

const (
	DefaultReaperInterval = time.Minute
	ReaperLockKey         = "transmute:reaper"
)

type ReaperConfig struct {
	Interval time.Duration
	// LockTTL bounds how long one replica may hold the sweep lock.
	LockTTL time.Duration
}

// StoreSweep counts one store's share of a pass.
type StoreSweep struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// SweepResult describes one reaper pass.
type SweepResult struct {
	TTLMinutes int64      `json:"ttl_minutes"`
	Originals  StoreSweep `json:"originals"`
	Converted  StoreSweep `json:"converted"`
	// Skipped is set when another replica held the lock.
	Skipped bool `json:"skipped"`
}

// Reaper deletes files older than the configured TTL on a fixed interval.
type Reaper struct {
	deps   Deps
	cfg    ReaperConfig
	pool   *workerpool.Pool
	locker Locker
	now    func() time.Time
	log    *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type ReaperOption func(*Reaper)

// WithPool fans per-record deletions out over pool.
func WithPool(pool *workerpool.Pool) ReaperOption {
	return func(r *Reaper) { r.pool = pool }
}

// WithLocker makes each pass take a distributed lock first.
func WithLocker(l Locker) ReaperOption {
	return func(r *Reaper) { r.locker = l }
}

// WithNow overrides the reaper's clock.
func WithNow(now func() time.Time) ReaperOption {
	return func(r *Reaper) { r.now = now }
}

func NewReaper(deps Deps, cfg ReaperConfig, opts ...ReaperOption) (*Reaper, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReaperInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * cfg.Interval
	}
	r := &Reaper{
		deps: deps,
		cfg:  cfg,
		now:  time.Now,
		log:  deps.Logger.Named("reaper"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start runs a pass immediately and then every interval until Stop is
// called or ctx ends.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("reaper already running")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)

	r.log.Info("reaper started", zap.Duration("interval", r.cfg.Interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info("reaper stopped")
}

func (r *Reaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.pass(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reaper) pass(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.log.Error("reaper pass failed", zap.Error(err))
	}
}

// RunOnce performs a single pass. Per-record failures are counted in the
// result; only a failure to read settings or list a store is returned.
func (r *Reaper) RunOnce(ctx context.Context) (*SweepResult, error) {
	if r.locker == nil {
		return r.record(r.sweep(ctx))
	}

	var (
		res *SweepResult
		err error
	)
	lockErr := r.locker.WithLock(ctx, ReaperLockKey, r.cfg.LockTTL, func(ctx context.Context) error {
		res, err = r.sweep(ctx)
		return err
	})
	if errors.Is(lockErr, redis.ErrLockHeld) {
		metrics.ReaperRunsTotal.WithLabelValues("skipped").Inc()
		r.log.Debug("reaper pass skipped, lock held elsewhere")
		return &SweepResult{Skipped: true}, nil
	}
	if err == nil && lockErr != nil {
		err = fmt.Errorf("reaper lock: %w", lockErr)
	}
	return r.record(res, err)
}

func (r *Reaper) record(res *SweepResult, err error) (*SweepResult, error) {
	if err != nil {
		metrics.ReaperRunsTotal.WithLabelValues("failed").Inc()
		return res, err
	}
	metrics.ReaperRunsTotal.WithLabelValues("completed").Inc()
	metrics.ReaperLastRun.SetToCurrentTime()
	return res, nil
}

func (r *Reaper) sweep(ctx context.Context) (*SweepResult, error) {
	settings, err := r.deps.Settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	ttl := time.Duration(settings.CleanupTTLMinutes) * time.Minute
	now := r.now().UTC()

	res := &SweepResult{TTLMinutes: settings.CleanupTTLMinutes}
	if res.Originals, err = r.sweepStore(ctx, r.deps.Originals, "originals", now, ttl, r.expireOriginal); err != nil {
		return res, err
	}
	if res.Converted, err = r.sweepStore(ctx, r.deps.Converted, "converted", now, ttl, r.expireConverted); err != nil {
		return res, err
	}

	if res.Originals.Deleted+res.Converted.Deleted+res.Originals.Errors+res.Converted.Errors > 0 {
		r.log.Info("reaper pass finished",
			zap.Int64("ttl_minutes", res.TTLMinutes),
			zap.Int("originals_deleted", res.Originals.Deleted),
			zap.Int("converted_deleted", res.Converted.Deleted),
			zap.Int("errors", res.Originals.Errors+res.Converted.Errors),
		)
	}
	return res, nil
}

func (r *Reaper) sweepStore(
	ctx context.Context,
	repo FileRepo,
	label string,
	now time.Time,
	ttl time.Duration,
	expire func(context.Context, *FileRecord) error,
) (StoreSweep, error) {
	recs, err := repo.List(ctx)
	if err != nil {
		return StoreSweep{}, fmt.Errorf("list %s: %w", repo.Table(), err)
	}

	var deleted, failed atomic.Int64
	run := func(rec *FileRecord) func() error {
		return func() error {
			if err := expire(ctx, rec); err != nil {
				failed.Add(1)
				metrics.ReaperErrorsTotal.WithLabelValues(label).Inc()
				r.log.Warn("expire record failed", zap.String("store", label), zap.String("id", rec.ID), zap.Error(err))
				return err
			}
			deleted.Add(1)
			metrics.ReaperDeletedTotal.WithLabelValues(label).Inc()
			return nil
		}
	}

	var group *workerpool.Group
	if r.pool != nil {
		group = r.pool.Group()
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		created, err := rec.CreatedTime()
		if err != nil {
			failed.Add(1)
			metrics.ReaperErrorsTotal.WithLabelValues(label).Inc()
			r.log.Warn("unparseable created_at", zap.String("store", label), zap.String("id", rec.ID), zap.String("created_at", rec.CreatedAt))
			continue
		}
		if now.Sub(created) <= ttl {
			continue
		}
		if group != nil {
			group.Go(run(rec))
		} else {
			_ = run(rec)()
		}
	}
	if group != nil {
		// per-record errors are already counted and logged
		_ = group.Wait()
	}

	return StoreSweep{Scanned: len(recs), Deleted: int(deleted.Load()), Errors: int(failed.Load())}, nil
}

func (r *Reaper) expireOriginal(ctx context.Context, rec *FileRecord) error {
	if err := r.deps.purge(ctx, r.deps.Originals, rec); err != nil {
		return err
	}
	r.deps.notify(EventFileExpired, rec.ID, rec)
	return nil
}

func (r *Reaper) expireConverted(ctx context.Context, rec *FileRecord) error {
	if err := r.deps.purgeConverted(ctx, rec); err != nil {
		return err
	}
	if err := r.deps.Relations.DeleteByConverted(ctx, rec.ID); err != nil {
		return err
	}
	r.deps.notify(EventConversionExpired, rec.ID, rec)
	return nil
}
