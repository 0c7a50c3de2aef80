package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/lk2023060901/transmute-backend/internal/files/service"
	"github.com/lk2023060901/transmute-backend/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(ctx context.Context, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the cleanup reaper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, cleanup, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	files, err := biz.NewFileUseCase(a.deps)
	if err != nil {
		return err
	}
	conversions, err := biz.NewConversionUseCase(a.deps, cfg.Converter.Timeout)
	if err != nil {
		return err
	}
	settings := biz.NewSettingsUseCase(a.data.Stores.Settings, log)

	fileService := service.NewFileService(files, conversions, settings, a.registry, cfg.Server.MaxUploadBytes, log)
	healthService := service.NewHealthService(cfg.Server.Name, version, a.data.DB, a.store,
		[]string{a.store.Dirs().Uploads, a.store.Dirs().Outputs}, a.registry.Names)
	eventService := service.NewEventService(a.events, 30*time.Second)
	httpServer := server.NewHTTPServer(&cfg.Server, log, fileService, healthService, eventService)

	if cfg.Cleanup.Enabled {
		if err := a.reaper.Start(ctx); err != nil {
			return err
		}
		defer a.reaper.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	log.Info("server started",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("version", version),
		zap.Strings("converters", a.registry.Names()),
		zap.Bool("cleanup", cfg.Cleanup.Enabled),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
