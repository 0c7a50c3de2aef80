// Package data opens the backing services: the metadata database and the
// optional redis and object store connections.
package data

import (
	"context"
	"fmt"

	"github.com/lk2023060901/transmute-backend/internal/conf"
	filesdata "github.com/lk2023060901/transmute-backend/internal/files/data"
	"github.com/lk2023060901/transmute-backend/internal/pkg/database"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/minio"
	"github.com/lk2023060901/transmute-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

type Data struct {
	DB     *database.DB
	Stores *filesdata.Stores
	// Redis and MinIO are nil when not configured.
	Redis  *redis.Client
	MinIO  *minio.Client
	Logger *logger.Logger
}

func NewData(ctx context.Context, config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	db, err := database.New(&config.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	stores, err := filesdata.NewStores(ctx, db, filesdata.TableNames{
		Files:       config.Tables.Files,
		Conversions: config.Tables.Conversions,
		Relations:   config.Tables.Relations,
		Settings:    config.Tables.Settings,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate stores: %w", err)
	}

	d := &Data{DB: db, Stores: stores, Logger: log}

	if config.Redis.Enabled() {
		rc, err := redis.New(&config.Redis, log)
		if err != nil {
			d.close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.Redis = rc
	}

	if config.MinIO.Enabled() {
		mc, err := minio.NewClient(&config.MinIO, log)
		if err != nil {
			d.close()
			return nil, nil, fmt.Errorf("failed to init minio: %w", err)
		}
		if err := mc.EnsureBucket(ctx); err != nil {
			_ = mc.Close()
			d.close()
			return nil, nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
		}
		d.MinIO = mc
	}

	cleanup := func() {
		log.Info("cleaning up data resources")
		d.close()
	}
	return d, cleanup, nil
}

func (d *Data) close() {
	if d.MinIO != nil {
		_ = d.MinIO.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Warn("close database", zap.Error(err))
	}
}

// Mirror returns the object store mirror, or nil when MinIO is disabled.
func (d *Data) Mirror() *ObjectMirror {
	if d.MinIO == nil {
		return nil
	}
	return NewObjectMirror(d.MinIO)
}
