package main

import (
	"context"
	"fmt"

	"github.com/lk2023060901/transmute-backend/internal/conf"
	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/converter/registry"
	"github.com/lk2023060901/transmute-backend/internal/data"
	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/sse"
	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
	"github.com/lk2023060901/transmute-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/transmute-backend/internal/storage"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	config   *conf.Config
	log      *logger.Logger
	data     *data.Data
	store    *storage.FileStore
	registry *registry.Registry
	pool     *workerpool.Pool
	events   *sse.Hub
	deps     biz.Deps
	reaper   *biz.Reaper
}

func loadConfig(opts *rootOptions) (*conf.Config, *logger.Logger, error) {
	cfg, err := conf.Load(opts.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(log)
	return cfg, log, nil
}

func newRegistry(cfg *conf.Config, log *logger.Logger) *registry.Registry {
	return registry.New(converter.Builtin(&cfg.Converter, log), log)
}

func newApp(ctx context.Context, cfg *conf.Config, log *logger.Logger) (*app, func(), error) {
	d, cleanupData, err := data.NewData(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	dirs := storage.DirsUnder(cfg.Storage.DataDir)
	store, err := storage.NewOS(dirs)
	if err != nil {
		cleanupData()
		return nil, nil, fmt.Errorf("failed to prepare storage: %w", err)
	}
	paths, err := validator.NewPathValidator(dirs.All()...)
	if err != nil {
		cleanupData()
		return nil, nil, err
	}

	pool, err := workerpool.New(&cfg.WorkerPool, log)
	if err != nil {
		cleanupData()
		return nil, nil, err
	}

	reg := newRegistry(cfg, log)
	events := sse.NewHub(64)
	deps := biz.Deps{
		Originals: d.Stores.Originals,
		Converted: d.Stores.Converted,
		Relations: d.Stores.Relations,
		Settings:  d.Stores.Settings,
		Store:     store,
		Paths:     paths,
		Registry:  reg,
		Events:    events,
		Logger:    log,
	}
	if m := d.Mirror(); m != nil {
		deps.Mirror = m
	}

	reaperOpts := []biz.ReaperOption{biz.WithPool(pool)}
	if d.Redis != nil {
		reaperOpts = append(reaperOpts, biz.WithLocker(d.Redis))
	}
	reaper, err := biz.NewReaper(deps, biz.ReaperConfig{
		Interval: cfg.Cleanup.Interval,
		LockTTL:  cfg.Cleanup.LockTTL,
	}, reaperOpts...)
	if err != nil {
		pool.Shutdown(cfg.Server.ShutdownTimeout)
		cleanupData()
		return nil, nil, err
	}

	a := &app{
		config:   cfg,
		log:      log,
		data:     d,
		store:    store,
		registry: reg,
		pool:     pool,
		events:   events,
		deps:     deps,
		reaper:   reaper,
	}
	cleanup := func() {
		pool.Shutdown(cfg.Server.ShutdownTimeout)
		cleanupData()
	}
	return a, cleanup, nil
}
